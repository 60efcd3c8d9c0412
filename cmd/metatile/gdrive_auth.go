package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/oauth2"

	"metatiled/internal/storage"
)

type gdriveAuthCmd struct {
	wait time.Duration
}

func (c *gdriveAuthCmd) Name() string { return "gdrive-auth" }
func (c *gdriveAuthCmd) Synopsis() string {
	return "obtain the GDRIVE_REFRESH_TOKEN used by the Drive mirror"
}
func (c *gdriveAuthCmd) Usage() string {
	return "GDRIVE_CLIENT_ID=... GDRIVE_CLIENT_SECRET=... metatile gdrive-auth\n"
}
func (c *gdriveAuthCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.wait, "wait", 3*time.Minute, "How long to wait for the browser callback")
}

func (c *gdriveAuthCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	conf, err := storage.OAuthConfig()
	if err != nil {
		log.Println(err)
		return subcommands.ExitUsageError
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	defer ln.Close()
	conf.RedirectURL = fmt.Sprintf("http://%s/callback", ln.Addr())

	state := randomState()
	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{
		Handler:      callbackHandler(state, codeCh, errCh),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() { _ = srv.Serve(ln) }()
	defer srv.Close()

	// prompt=consent makes Google return a refresh token on every run.
	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
	fmt.Printf("Open this URL in your browser:\n\n%s\n\nWaiting for authorization on %s\n", authURL, conf.RedirectURL)

	var code string
	select {
	case code = <-codeCh:
	case err := <-errCh:
		log.Println(err)
		return subcommands.ExitFailure
	case <-time.After(c.wait):
		log.Println("timed out waiting for authorization")
		return subcommands.ExitFailure
	case <-ctx.Done():
		return subcommands.ExitFailure
	}

	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		log.Println(err)
		return subcommands.ExitFailure
	}
	if strings.TrimSpace(tok.RefreshToken) == "" {
		log.Println("no refresh token returned; revoke the app at https://myaccount.google.com/permissions and retry")
		return subcommands.ExitFailure
	}

	fmt.Printf("\nGDRIVE_REFRESH_TOKEN=%s\n", tok.RefreshToken)
	return subcommands.ExitSuccess
}

// callbackHandler delivers the authorization code, or the reason there is
// none, from the OAuth redirect. Only the first outcome is kept.
func callbackHandler(state string, codeCh chan<- string, errCh chan<- error) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var err error
		switch {
		case q.Get("state") != state:
			err = errors.New("invalid state")
		case q.Get("error") != "":
			err = fmt.Errorf("auth error: %s", q.Get("error"))
		case q.Get("code") == "":
			err = errors.New("missing code")
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			select {
			case errCh <- err:
			default:
			}
			return
		}

		fmt.Fprintln(w, "Authorized. You can close this window and return to the terminal.")
		select {
		case codeCh <- q.Get("code"):
		default:
		}
	})
	return mux
}

func randomState() string {
	b := make([]byte, 18)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
