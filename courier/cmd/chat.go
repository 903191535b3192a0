package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"courier/courier/controllers"
	"courier/courier/gateway"
	"courier/courier/types"
	"courier/courier/utils/color"
	"courier/courier/utils/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var chatInstallation string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Join the chat room from the terminal",
	Long: `Runs a gateway client in this process against the configured backends.
Plain lines are posted as messages. Commands:
  /login <username> [display name]   sign in
  /logout                            sign out
  /image <file>                      post an image message
  /notify                            ask for notification permission
  /register                          register this terminal for push
  exit | quit                        leave`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&chatInstallation, "installation", "", "push installation id (default PUSH_INSTALLATION_ID or cli-<hostname>)")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	b, err := openBackends(openCtx, cfg)
	cancel()
	if err != nil {
		logging.ErrorLogger.Error("backend connection error", zap.Error(err))
		return err
	}
	defer b.close()

	installation := chatInstallation
	if installation == "" {
		installation = cfg.PushInstallationID
	}
	if installation == "" {
		host, _ := os.Hostname()
		installation = "cli-" + host
	}

	out := cmd.OutOrStdout()
	t := &terminal{in: bufio.NewScanner(cmd.InOrStdin()), out: out}
	auth := controllers.NewAuthController(b.users, b.tokens, logging.AppLogger)

	client, err := b.gatewayController().Open(ctx, controllers.ClientOptions{
		Installation: installation,
		Navigator: gateway.NavigatorFunc(func(view string) {
			t.println(color.ColorNavigate("→ " + view))
		}),
		Prompt: t.confirm,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	go t.follow(client.SubscribeToRecentMessages(ctx))

	t.println(color.ColorInfo("Connected as installation " + installation + ". Type /login <username> to start."))
	for {
		line, ok := t.readLine(color.ColorPrompt("courier> "))
		if !ok || ctx.Err() != nil {
			break
		}
		if line == "exit" || line == "quit" {
			t.println("Goodbye!")
			break
		}
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if client.PostTextMessage(ctx, line) == nil {
				t.println(color.ColorWarning("message not sent, see the logs"))
			}
			continue
		}

		command, rest, _ := strings.Cut(line[1:], " ")
		rest = strings.TrimSpace(rest)
		switch command {
		case "login":
			username, display, _ := strings.Cut(rest, " ")
			req := types.LoginRequest{Username: username}
			if display = strings.TrimSpace(display); display != "" {
				req.DisplayName = &display
			}
			resp, err := auth.Login(ctx, req)
			if err != nil {
				t.println(color.ColorError("login failed: " + err.Error()))
				continue
			}
			client.SignIn(ctx, resp.Token)
		case "logout":
			client.SignOut(ctx)
		case "image":
			if err := postImage(ctx, client, rest); err != nil {
				t.println(color.ColorError(err.Error()))
			}
		case "notify":
			client.RequestNotificationPermission(ctx)
		case "register":
			client.RegisterDeviceToken(ctx)
		default:
			t.println(color.ColorWarning("unknown command /" + command))
		}
	}
	return nil
}

func postImage(ctx context.Context, client *controllers.Client, path string) error {
	if path == "" {
		return fmt.Errorf("usage: /image <file>")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	ref := client.PostImageMessage(ctx, types.File{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Size:        info.Size(),
		Body:        f,
	})
	if ref == nil {
		return fmt.Errorf("image not posted, see the logs")
	}
	return nil
}

// terminal serialises prompt input and asynchronous output.
type terminal struct {
	mu  sync.Mutex
	in  *bufio.Scanner
	out io.Writer
}

func (t *terminal) println(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintln(t.out, s)
}

func (t *terminal) readLine(prompt string) (string, bool) {
	t.mu.Lock()
	fmt.Fprint(t.out, prompt)
	t.mu.Unlock()
	if !t.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(t.in.Text()), true
}

func (t *terminal) confirm(ctx context.Context) (bool, error) {
	answer, ok := t.readLine(color.ColorPrompt("Allow notifications? [y/N] "))
	if !ok {
		return false, ctx.Err()
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// follow prints messages as they enter the recent window, oldest first.
func (t *terminal) follow(windows <-chan []types.MessageEntry) {
	seen := map[string]bool{}
	first := true
	for window := range windows {
		for i := len(window) - 1; i >= 0; i-- {
			entry := window[i]
			if seen[entry.ID] {
				continue
			}
			seen[entry.ID] = true
			t.println(formatEntry(entry, first))
		}
		first = false
	}
}

func formatEntry(entry types.MessageEntry, backlog bool) string {
	m := entry.Message
	name := "unknown"
	if m.SenderName != nil {
		name = *m.SenderName
	}
	body := ""
	switch {
	case m.Text != nil:
		body = *m.Text
	case m.ImageURL != nil:
		body = "[image] " + *m.ImageURL
	}
	stamp := m.CreatedAt.Local().Format("15:04")
	line := fmt.Sprintf("%s %s: %s", stamp, color.ColorSender(name), body)
	if backlog {
		return "  " + line
	}
	return line
}
