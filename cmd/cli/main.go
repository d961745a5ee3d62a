package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"cinegate/pkg/logging"
	"cinegate/pkg/utils"
)

const defaultBaseURL = "http://localhost:8080"

func main() {
	global := flag.NewFlagSet("cinegate", flag.ExitOnError)
	baseURL := global.String("api", envOr("CINEGATE_API", defaultBaseURL), "API base URL")
	tokenPath := global.String("token", defaultTokenPath(), "token file path")
	_ = global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	log := logging.NewLogger("cli", utils.LoadLogConfig())
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := newAPIClient(*baseURL)
	cmd, sub, rest := args[0], args[1], args[2:]

	var err error
	switch cmd {
	case "auth":
		err = handleAuth(ctx, client, *tokenPath, sub, rest)
	case "catalog":
		err = handleCatalog(ctx, client, sub, rest)
	case "content":
		err = withToken(client, *tokenPath, func() error { return handleContent(ctx, client, sub, rest) })
	case "ads":
		err = withToken(client, *tokenPath, func() error { return handleAds(ctx, client, sub, rest) })
	case "click":
		err = handleClick(ctx, client, sub, rest)
	case "events":
		err = handleEvents(ctx, *baseURL, sub, log)
	default:
		printUsage(os.Stdout)
		os.Exit(1)
	}
	if err != nil {
		log.WithError(err).WithField("command", cmd+" "+sub).Fatal("command failed")
	}
}

func withToken(c *apiClient, path string, fn func() error) error {
	token, err := readToken(path, time.Now())
	if err != nil {
		return fmt.Errorf("not logged in, run `cinegate auth login`: %w", err)
	}
	c.token = token
	return fn()
}

func handleAuth(ctx context.Context, c *apiClient, tokenPath, sub string, args []string) error {
	switch sub {
	case "login":
		fs := flag.NewFlagSet("auth login", flag.ExitOnError)
		password := fs.String("password", os.Getenv("CINEGATE_ADMIN_PASSWORD"), "admin password")
		_ = fs.Parse(args)
		if *password == "" {
			return fmt.Errorf("password is required")
		}
		td, err := c.login(ctx, *password)
		if err != nil {
			return err
		}
		if err := saveToken(tokenPath, td); err != nil {
			return fmt.Errorf("save token: %w", err)
		}
		fmt.Printf("logged in, token valid until %s\n", td.ExpiresAt.Local().Format(time.RFC1123))
		return nil
	case "logout":
		if err := clearToken(tokenPath); err != nil {
			return err
		}
		fmt.Println("logged out")
		return nil
	default:
		return fmt.Errorf("usage: cinegate auth <login|logout>")
	}
}

func handleCatalog(ctx context.Context, c *apiClient, sub string, args []string) error {
	switch sub {
	case "browse":
		fs := flag.NewFlagSet("catalog browse", flag.ExitOnError)
		q := fs.String("q", "", "title search")
		genre := fs.String("genre", "", "genre id or name")
		typ := fs.String("type", "all", "all|movie|tv|animation")
		page := fs.Int("page", 1, "page number")
		_ = fs.Parse(args)

		params := url.Values{}
		if *q != "" {
			params.Set("q", *q)
		}
		if *genre != "" {
			params.Set("genre", *genre)
		}
		params.Set("type", *typ)
		params.Set("page", fmt.Sprintf("%d", *page))

		resp, err := c.browse(ctx, params)
		if err != nil {
			return err
		}
		printPage(os.Stdout, resp)
		return nil
	case "show":
		fs := flag.NewFlagSet("catalog show", flag.ExitOnError)
		id := fs.String("id", "", "content id")
		_ = fs.Parse(args)
		if *id == "" {
			return fmt.Errorf("id is required")
		}
		var out map[string]any
		if err := c.doJSON(ctx, "GET", "/api/content/"+url.PathEscape(*id), nil, &out); err != nil {
			return err
		}
		printJSON(out)
		return nil
	case "genres":
		var out any
		if err := c.doJSON(ctx, "GET", "/api/genres", nil, &out); err != nil {
			return err
		}
		printJSON(out)
		return nil
	default:
		return fmt.Errorf("usage: cinegate catalog <browse|show|genres>")
	}
}

func handleContent(ctx context.Context, c *apiClient, sub string, args []string) error {
	switch sub {
	case "pending":
		fs := flag.NewFlagSet("content pending", flag.ExitOnError)
		limit := fs.Int("limit", 50, "max rows")
		_ = fs.Parse(args)
		resp, err := c.pending(ctx, *limit)
		if err != nil {
			return err
		}
		for _, m := range resp.Items {
			fmt.Printf("%s  %-7s %s\n", m.ID, m.ContentType, m.Title)
		}
		fmt.Printf("%d pending\n", resp.Total)
		return nil
	case "approve", "delete":
		fs := flag.NewFlagSet("content "+sub, flag.ExitOnError)
		id := fs.String("id", "", "content id")
		_ = fs.Parse(args)
		if *id == "" {
			return fmt.Errorf("id is required")
		}
		method, path := "POST", "/admin/content/"+url.PathEscape(*id)+"/approve"
		if sub == "delete" {
			method, path = "DELETE", "/admin/content/"+url.PathEscape(*id)
		}
		var out map[string]any
		if err := c.doJSON(ctx, method, path, nil, &out); err != nil {
			return err
		}
		printJSON(out)
		return nil
	default:
		return fmt.Errorf("usage: cinegate content <pending|approve|delete>")
	}
}

func handleAds(ctx context.Context, c *apiClient, sub string, _ []string) error {
	switch sub {
	case "status":
		var out map[string]any
		if err := c.doJSON(ctx, "GET", "/admin/settings/ads", nil, &out); err != nil {
			return err
		}
		printJSON(out)
		return nil
	case "on", "off":
		out, err := c.setAds(ctx, sub == "on")
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	default:
		return fmt.Errorf("usage: cinegate ads <status|on|off>")
	}
}

// handleClick walks a funnel step several times as one visitor.
func handleClick(ctx context.Context, c *apiClient, sub string, args []string) error {
	step := map[string]string{"download": "step1", "watch": "step2"}[sub]
	if step == "" {
		return fmt.Errorf("usage: cinegate click <download|watch> -id ID [-n N]")
	}
	fs := flag.NewFlagSet("click "+sub, flag.ExitOnError)
	id := fs.String("id", "", "content id")
	n := fs.Int("n", 3, "number of clicks")
	_ = fs.Parse(args)
	if *id == "" {
		return fmt.Errorf("id is required")
	}

	for i := 0; i < *n; i++ {
		out, err := c.click(ctx, *id, step)
		if err != nil {
			return err
		}
		fmt.Println(describeStep(out))
	}
	return nil
}

func describeStep(s stepResponse) string {
	switch {
	case s.AdOpened && s.Continue:
		return fmt.Sprintf("click %d: ad %s, then %s", s.Count, s.AdURL, s.Next)
	case s.AdOpened:
		return fmt.Sprintf("click %d: ad %s", s.Count, s.AdURL)
	case s.Continue:
		return fmt.Sprintf("click %d: continue to %s", s.Count, s.Next)
	default:
		return fmt.Sprintf("click %d: no action", s.Count)
	}
}

func handleEvents(ctx context.Context, baseURL, sub string, log *logrus.Entry) error {
	if sub != "listen" {
		return fmt.Errorf("usage: cinegate events listen")
	}
	endpoint, err := websocketURL(baseURL, "/ws")
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	log.WithField("url", endpoint).Info("listening for events")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		fmt.Println(string(msg))
	}
}

func printPage(w io.Writer, p *browseResponse) {
	for _, m := range p.Items {
		year := ""
		if m.ReleaseYear > 0 {
			year = fmt.Sprintf(" (%d)", m.ReleaseYear)
		}
		fmt.Fprintf(w, "%-38s %-7s %s%s\n", m.ID, m.ContentType, m.Title, year)
	}
	fmt.Fprintf(w, "page %d/%d, %d titles\n", p.Page, p.TotalPages, p.TotalItems)
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "cinegate [-api URL] <command> <subcommand> [flags]")
	fmt.Fprintln(w, "commands:")
	fmt.Fprintln(w, "  auth login|logout")
	fmt.Fprintln(w, "  catalog browse|show|genres")
	fmt.Fprintln(w, "  content pending|approve|delete   (admin)")
	fmt.Fprintln(w, "  ads status|on|off                (admin)")
	fmt.Fprintln(w, "  click download|watch")
	fmt.Fprintln(w, "  events listen")
}
