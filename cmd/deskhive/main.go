// Command deskhive is a terminal client for the DeskHive API, mainly used to
// exercise the login and session flow against a live environment: paste the
// post-login redirect URI from the browser and it calls an authenticated
// endpoint with the issued tokens.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/deskhive/deskhive-go/apperr"
	"github.com/deskhive/deskhive-go/client"
	"github.com/deskhive/deskhive-go/config"
	"github.com/deskhive/deskhive-go/keystore"
)

const appName = "deskhive"

var appVersion = "dev"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("deskhive exited with error")
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	// Load .env if present; flags win over environment.
	_ = godotenv.Load()

	baseURL := flag.String("base-url", envOr("DESKHIVE_BASE_URL", "https://api.deskhive.app"), "API base URL")
	dataDir := flag.String("data-dir", envOr("DESKHIVE_DATA_DIR", defaultDataDir()), "directory for the encrypted credential store")
	passphrase := flag.String("passphrase", os.Getenv("DESKHIVE_PASSPHRASE"), "credential store passphrase")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	displayAppname(appName)

	if *passphrase == "" {
		return errors.New("a credential store passphrase is required (-passphrase or DESKHIVE_PASSPHRASE)")
	}

	store, err := keystore.NewFileStore(*dataDir, *passphrase)
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	cfg := config.New(*baseURL, appName, appVersion)
	c, err := client.New(cfg, store)
	if err != nil {
		return fmt.Errorf("build client: %w", err)
	}

	ctx := context.Background()
	if err := c.Hydrate(ctx); err != nil {
		log.Warn().Err(err).Msg("could not restore previous session")
	}

	if !c.Session().LoggedIn() {
		if err := loginFromRedirect(ctx, c); err != nil {
			return err
		}
	}
	return whoami(ctx, c)
}

// loginFromRedirect prompts for the redirect URI produced by the browser
// login and feeds it to the deep-link bridge.
func loginFromRedirect(ctx context.Context, c *client.Client) error {
	fmt.Println("Log in at your workspace's DeskHive web login, then paste the redirect URI:")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read redirect URI: %w", err)
	}

	applied, err := c.HandleRedirect(ctx, strings.TrimSpace(line))
	if err != nil {
		log.Warn().Err(err).Msg("session did not persist; it will not survive a restart")
	}
	if !applied && !c.Session().LoggedIn() {
		return errors.New("the pasted URI did not carry a token pair")
	}
	log.Info().Msg("logged in")
	return nil
}

func whoami(ctx context.Context, c *client.Client) error {
	req, err := c.NewRequest(ctx, "GET", "/api/users/me", nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		if apperr.Classify(err) == apperr.Surfaced {
			return fmt.Errorf("%s", apperr.Message(err))
		}
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	fmt.Printf("%s %s\n", resp.Status, string(body))
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".deskhive"
	}
	return filepath.Join(home, ".deskhive")
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
