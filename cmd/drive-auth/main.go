// Package main provides the entry point for the Mokuro Reader drive-auth
// helper. It stands in for the application shell: -login runs a full
// browser-based OAuth2 Authorization Code + PKCE flow against Google and
// persists the delivered tokens, -refresh renews an access token from a
// previously stored refresh token.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	googleauth "github.com/mokuro-reader/drive-auth/internal/auth/google"
	"github.com/mokuro-reader/drive-auth/internal/browser"
	"github.com/mokuro-reader/drive-auth/internal/config"
	"github.com/mokuro-reader/drive-auth/internal/logging"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// driveScopes limits the grant to files created by Mokuro Reader plus the
// account email shown in the sync settings.
var driveScopes = []string{
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/userinfo.email",
}

func init() {
	logging.SetupBaseLogger()
}

func main() {
	var login bool
	var refresh bool
	var noBrowser bool
	var configPath string
	var callbackPort int

	flag.BoolVar(&login, "login", false, "Login with a Google account")
	flag.BoolVar(&refresh, "refresh", false, "Refresh the stored access token")
	flag.BoolVar(&noBrowser, "no-browser", false, "Print the authorization URL instead of opening a browser")
	flag.StringVar(&configPath, "config", "config.yaml", "Path to the configuration file")
	flag.IntVar(&callbackPort, "port", 0, "Override the OAuth callback port")
	flag.Parse()

	// Credentials usually arrive via .env rather than the config file.
	if wd, err := os.Getwd(); err == nil {
		if errLoad := godotenv.Load(filepath.Join(wd, ".env")); errLoad != nil {
			log.Debugf("no .env file loaded: %v", errLoad)
		}
	}

	cfg, err := config.LoadConfigOptional(configPath, true)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if v := os.Getenv("MOKURO_CLIENT_ID"); v != "" {
		cfg.ClientID = v
	}
	if v := os.Getenv("MOKURO_CLIENT_SECRET"); v != "" {
		cfg.ClientSecret = v
	}
	if callbackPort > 0 {
		cfg.CallbackPort = callbackPort
	}

	logging.SetDebug(cfg.Debug)
	if err = logging.SetupFileLogging(cfg.LogDir); err != nil {
		log.Warnf("file logging disabled: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case login:
		if err = doLogin(ctx, cfg, noBrowser); err != nil {
			log.Fatalf("login failed: %v", err)
		}
	case refresh:
		if err = doRefresh(ctx, cfg); err != nil {
			log.Fatalf("refresh failed: %v", err)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
}

// doLogin runs one complete authorization flow: it generates the state and
// PKCE material, starts the loopback callback listener, sends the user's
// browser to Google's consent page, and persists the delivered tokens.
func doLogin(ctx context.Context, cfg *config.Config, noBrowser bool) error {
	if cfg.ClientID == "" {
		return fmt.Errorf("client-id is not configured (set it in the config file or MOKURO_CLIENT_ID)")
	}

	state, err := googleauth.GenerateRandomState()
	if err != nil {
		return err
	}
	pkce, err := googleauth.GeneratePKCECodes()
	if err != nil {
		return err
	}

	store := googleauth.NewPendingStore()
	notifier := googleauth.NewChannelNotifier()
	auth := googleauth.NewGoogleAuth(cfg)
	server := googleauth.NewOAuthServer(auth, store, notifier, cfg.FlowTimeout())

	err = server.StartFlow(ctx, googleauth.FlowRequest{
		State:        state,
		Port:         cfg.CallbackPort,
		CodeVerifier: pkce.CodeVerifier,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURI:  cfg.RedirectURI(),
	})
	if err != nil {
		return err
	}
	defer func() {
		if errStop := server.Stop(context.Background()); errStop != nil {
			log.Errorf("failed to stop OAuth callback server: %v", errStop)
		}
	}()

	conf := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI(),
		Scopes:       driveScopes,
		Endpoint:     google.Endpoint,
	}
	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)

	if noBrowser || !browser.IsAvailable() {
		fmt.Printf("Please open this URL in your browser:\n\n%s\n\n", authURL)
	} else if errOpen := browser.OpenURL(authURL); errOpen != nil {
		log.Warnf("failed to open browser: %v", errOpen)
		fmt.Printf("Please manually open this URL in your browser:\n\n%s\n\n", authURL)
	}

	fmt.Println("Waiting for authentication callback...")

	select {
	case note := <-notifier.Events():
		if note.Err != "" {
			return fmt.Errorf("authentication failed: %s", note.Err)
		}
		authFile := filepath.Join(cfg.AuthDir, "google.json")
		if errSave := googleauth.NewTokenStorage(*note.Token).SaveTokenToFile(authFile); errSave != nil {
			return errSave
		}
		fmt.Printf("Authentication successful. Tokens saved to %s\n", authFile)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// doRefresh renews the access token from the stored refresh token. This path
// is synchronous and independent of the callback listener.
func doRefresh(ctx context.Context, cfg *config.Config) error {
	authFile := filepath.Join(cfg.AuthDir, "google.json")
	ts, err := googleauth.LoadTokenFromFile(authFile)
	if err != nil {
		return err
	}
	if ts.RefreshToken == "" {
		return fmt.Errorf("no refresh token stored in %s", authFile)
	}

	auth := googleauth.NewGoogleAuth(cfg)
	refreshed, err := auth.RefreshToken(ctx, ts.RefreshToken, cfg.ClientID, cfg.ClientSecret)
	if err != nil {
		return err
	}

	ts.ApplyRefresh(refreshed)
	if err = ts.SaveTokenToFile(authFile); err != nil {
		return err
	}
	fmt.Printf("Access token refreshed, valid for %d seconds.\n", refreshed.ExpiresIn)
	return nil
}
