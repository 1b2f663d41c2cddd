package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/saravenpi/whopchat/internal/api"
	"github.com/saravenpi/whopchat/internal/assistant"
	"github.com/saravenpi/whopchat/internal/chatsync"
	"github.com/saravenpi/whopchat/internal/config"
	"github.com/saravenpi/whopchat/internal/logging"
	"github.com/saravenpi/whopchat/internal/repository"
	"github.com/saravenpi/whopchat/internal/server"
	"github.com/saravenpi/whopchat/internal/session"
	"github.com/saravenpi/whopchat/internal/socket"
	"github.com/saravenpi/whopchat/internal/ui"
)

const version = "1.0.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "-v", "--version":
			fmt.Printf("Whop Chat v%s\n", version)
			return
		case "help", "-h", "--help":
			printHelp()
			return
		case "serve":
			if err := runServer(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		default:
			fmt.Printf("Unknown command: %s\n", os.Args[1])
			printHelp()
			os.Exit(1)
		}
	}

	if err := runClient(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func runClient() error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return err
	}

	// The terminal belongs to bubbletea, so the client logs to a file.
	logger, err := logging.New(cfg.Client.LogFile, cfg.Client.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	sess, err := session.Load(session.DefaultPath())
	if err != nil {
		return err
	}

	client, err := api.New(cfg.Client.ServerURL, logger.Named("api"))
	if err != nil {
		return err
	}
	restoreSession(client, sess, logger)

	sock, err := socket.New(client.BaseURL(), client.Cookie(), logger.Named("socket"))
	if err != nil {
		return err
	}

	toaster := ui.NewToaster()
	store := chatsync.New(chatsync.Deps{
		API:       client,
		Transport: sock,
		Identity:  sess,
		Notifier:  toaster,
		Logger:    logger.Named("chatsync"),
	})

	root := ui.NewRoot(&ui.App{
		Store:   store,
		Client:  client,
		Session: sess,
		Socket:  sock,
		Toaster: toaster,
		Logger:  logger.Named("ui"),
	})
	defer root.Close()

	p := tea.NewProgram(root, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("failed to run the terminal ui: %w", err)
	}
	return nil
}

// restoreSession hands the saved token to the client when it belongs to the
// configured server and the server still accepts it. An unreachable server
// keeps the session so the app can start offline.
func restoreSession(client *api.Client, sess *session.Session, logger *zap.Logger) {
	token := sess.Token()
	if token == "" {
		return
	}
	if saved := sess.ServerURL(); saved != "" && saved != client.BaseURL() {
		logger.Info("saved session belongs to another server", zap.String("server_url", saved))
		if err := sess.Clear(); err != nil {
			logger.Warn("failed to clear session", zap.Error(err))
		}
		return
	}

	client.SetToken(token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user, err := client.Status(ctx)
	switch {
	case err == nil:
		if err := sess.Save(client.BaseURL(), token, *user); err != nil {
			logger.Warn("failed to refresh session", zap.Error(err))
		}
	case api.IsUnauthorized(err):
		logger.Info("saved session expired")
		client.ClearToken()
		if err := sess.Clear(); err != nil {
			logger.Warn("failed to clear session", zap.Error(err))
		}
	default:
		logger.Warn("could not verify saved session", zap.Error(err))
	}
}

func runServer() error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return err
	}

	logger, err := logging.New("", cfg.Server.Debug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.UsesDevSecret() {
		logger.Warn("signing tokens with the built-in development secret, set WHOPCHAT_JWT_SECRET")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := repository.Open(cfg.Server.DatabasePath, logger.Named("repository"))
	if err != nil {
		return err
	}
	defer repo.Close()

	var responder assistant.Responder = assistant.Echo{Delay: 40 * time.Millisecond}
	if cfg.Assistant.GeminiAPIKey != "" {
		gemini, err := assistant.NewGemini(ctx, assistant.GeminiConfig{
			APIKey:    cfg.Assistant.GeminiAPIKey,
			ModelName: cfg.Assistant.ModelName,
		}, logger.Named("assistant"))
		if err != nil {
			return err
		}
		defer gemini.Close()
		responder = gemini
	} else {
		logger.Warn("GEMINI_API_KEY not set, the AI participant answers with canned replies")
	}

	srv, err := server.New(ctx, server.Config{
		JWTSecret:      cfg.Server.JWTSecret,
		TokenTTL:       cfg.Server.TokenTTL,
		FrontendOrigin: cfg.Server.FrontendOrigin,
		SecureCookies:  strings.HasPrefix(cfg.Server.FrontendOrigin, "https://"),
	}, repo, responder, logger)
	if err != nil {
		return err
	}

	logger.Info("database ready", zap.String("path", cfg.Server.DatabasePath))
	return srv.Run(ctx, ":"+cfg.Server.Port)
}

func printHelp() {
	help := `Whop Chat - Terminal chat client with an AI participant

Usage:
  whopchat              Start the chat client
  whopchat serve        Run the chat server
  whopchat version      Show version information
  whopchat help         Show this help message

Navigation:
  ↑/↓ or j/k        Navigate lists
  Enter             Select/Open item
  ESC               Go back
  q                 Quit from current view
  ctrl+c            Force quit

Sign in:
  tab               Next field
  enter             Submit
  ctrl+r            Switch between sign in and sign up

Chats:
  /                 Search by participant or group name
  n                 Start a new chat
  r                 Refresh the chat list

People:
  space             Select for a group
  enter             Chat with the highlighted or selected people
  g                 Create a group from the selection

Messages:
  n or c            Compose a message
  p                 Reply to the latest message
  a                 Toggle AI replies (chats with Whop AI)
  ctrl+s            Send (while composing)
  r                 Reload the chat
  ↑/↓ or j/k        Scroll messages

Files:
  ~/.chime/config.yml    client, server and assistant settings
  ~/.chime/session.yml   saved login
  ~/.chime/whopchat.log  client log

Environment:
  WHOPCHAT_SERVER_URL    server the client talks to
  WHOPCHAT_JWT_SECRET    token signing secret for 'serve'
  GEMINI_API_KEY         enables Gemini replies for 'serve'
`
	fmt.Print(help)
}
