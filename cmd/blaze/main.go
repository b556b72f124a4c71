package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/blaze/internal"
	"github.com/starford/blaze/internal/mcpserver"
	"github.com/starford/blaze/pkg/blaze"
	pkgconfig "github.com/starford/blaze/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfExists(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// reference builds the client reference for a command, letting the --url
// and --auth flags override the config file.
func reference(cmd *cli.Command) (*blaze.Reference, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	rawURL := cfg.Database.URL
	if cmd.String("url") != "" {
		rawURL = cmd.String("url")
	}
	if rawURL == "" {
		return nil, fmt.Errorf("database url is required (--url flag or database.url in config)")
	}

	auth := cfg.Database.Auth
	if cmd.String("auth") != "" {
		auth = cmd.String("auth")
	}

	if auth != "" {
		return blaze.NewWithAuth(rawURL, auth)
	}
	return blaze.New(rawURL)
}

func decodeArg(raw string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("value is not valid JSON: %w", err)
	}
	return v, nil
}

func runGet(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().Get(0)
	ref, err := reference(cmd)
	if err != nil {
		return err
	}
	if path != "" {
		ref = ref.At(path)
	}

	q := ref.WithQuery()
	if cmd.String("order-by") != "" {
		q = q.OrderBy(cmd.String("order-by"))
	}
	if cmd.IsSet("limit-to-first") {
		q = q.LimitToFirst(int(cmd.Int("limit-to-first")))
	}
	if cmd.IsSet("limit-to-last") {
		q = q.LimitToLast(int(cmd.Int("limit-to-last")))
	}
	if cmd.String("start-at") != "" {
		q = q.StartAt(cmd.String("start-at"))
	}
	if cmd.String("end-at") != "" {
		q = q.EndAt(cmd.String("end-at"))
	}
	if cmd.String("equal-to") != "" {
		q = q.EqualTo(cmd.String("equal-to"))
	}
	if cmd.Bool("shallow") {
		q = q.Shallow(true)
	}
	if cmd.Bool("export") {
		q = q.Export()
	}

	resp, err := q.Finish().Get(ctx)
	if err != nil {
		return err
	}
	fmt.Println(resp.Body)
	return nil
}

func runWrite(ctx context.Context, cmd *cli.Command,
	op func(context.Context, *blaze.Reference, any) (*blaze.Response, error)) error {
	path := cmd.Args().Get(0)
	raw := cmd.Args().Get(1)
	if path == "" || raw == "" {
		return fmt.Errorf("usage: %s <path> <json>", cmd.Name)
	}
	value, err := decodeArg(raw)
	if err != nil {
		return err
	}
	ref, err := reference(cmd)
	if err != nil {
		return err
	}
	resp, err := op(ctx, ref.At(path), value)
	if err != nil {
		return err
	}
	fmt.Println(resp.Body)
	return nil
}

func runDelete(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().Get(0)
	if path == "" {
		return fmt.Errorf("usage: delete <path>")
	}
	ref, err := reference(cmd)
	if err != nil {
		return err
	}
	if _, err := ref.At(path).Delete(ctx); err != nil {
		return err
	}
	fmt.Println("deleted", path)
	return nil
}

func runIncr(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().Get(0)
	if path == "" {
		return fmt.Errorf("usage: incr <path>")
	}
	ref, err := reference(cmd)
	if err != nil {
		return err
	}

	var opts []blaze.CounterOption
	if cmd.IsSet("min") {
		opts = append(opts, blaze.WithMin(cmd.Int("min")))
	}
	if cmd.IsSet("max") {
		opts = append(opts, blaze.WithMax(cmd.Int("max")))
	}

	resp, err := ref.At(path).ApplyDelta(ctx, cmd.Int("delta"), opts...)
	if err != nil {
		return err
	}
	fmt.Println(resp.Body)
	return nil
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().Get(0)
	ref, err := reference(cmd)
	if err != nil {
		return err
	}
	if path != "" {
		ref = ref.At(path)
	}

	return ref.Listen(ctx, func(ev blaze.Event) {
		if ev.Data == "" {
			fmt.Println(ev.Type)
			return
		}
		fmt.Printf("%s %s\n", ev.Type, ev.Data)
	}, func(err error) {
		slog.Error("stream error", slog.String("error", err.Error()))
	}, cmd.Bool("keep-alive"))
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("emulator run error: %w", err)
	}
	return nil
}

func runMCP(_ context.Context, cmd *cli.Command) error {
	ref, err := reference(cmd)
	if err != nil {
		return err
	}
	return mcpserver.New(ref).ServeStdio()
}

func main() {
	queryFlags := []cli.Flag{
		&cli.StringFlag{Name: "order-by", Usage: "Order results by child key ($key and $value are recognized)"},
		&cli.IntFlag{Name: "limit-to-first", Usage: "Keep only the first N children"},
		&cli.IntFlag{Name: "limit-to-last", Usage: "Keep only the last N children"},
		&cli.StringFlag{Name: "start-at", Usage: "Drop children ordered before this value"},
		&cli.StringFlag{Name: "end-at", Usage: "Drop children ordered after this value"},
		&cli.StringFlag{Name: "equal-to", Usage: "Keep only children whose ordered value equals this value"},
		&cli.BoolFlag{Name: "shallow", Usage: "Truncate objects to one level"},
		&cli.BoolFlag{Name: "export", Usage: "Request export format"},
	}

	cmd := &cli.Command{
		Name:  "blaze",
		Usage: "Realtime database client with an embedded local emulator",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("BLAZE_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "url",
				Usage:   "Database base URL (https)",
				Sources: cli.EnvVars("BLAZE_URL"),
			},
			&cli.StringFlag{
				Name:    "auth",
				Usage:   "Static auth token attached as the auth query parameter",
				Sources: cli.EnvVars("BLAZE_AUTH"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "get",
				Usage:  "Read the value at a path",
				Flags:  queryFlags,
				Action: runGet,
			},
			{
				Name:  "set",
				Usage: "Replace the value at a path (PUT)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runWrite(ctx, cmd, func(ctx context.Context, r *blaze.Reference, v any) (*blaze.Response, error) {
						return r.Set(ctx, v)
					})
				},
			},
			{
				Name:  "push",
				Usage: "Append a value under a generated key (POST)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runWrite(ctx, cmd, func(ctx context.Context, r *blaze.Reference, v any) (*blaze.Response, error) {
						return r.Push(ctx, v)
					})
				},
			},
			{
				Name:  "update",
				Usage: "Merge fields into the value at a path (PATCH)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return runWrite(ctx, cmd, func(ctx context.Context, r *blaze.Reference, v any) (*blaze.Response, error) {
						return r.Update(ctx, v)
					})
				},
			},
			{
				Name:   "delete",
				Usage:  "Delete the value at a path",
				Action: runDelete,
			},
			{
				Name:  "incr",
				Usage: "Atomically add a delta to the counter at a path",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "delta", Value: 1, Usage: "Signed amount to add"},
					&cli.IntFlag{Name: "min", Usage: "Fail when the stored value sits at this bound"},
					&cli.IntFlag{Name: "max", Usage: "Fail when the delta would cross this bound"},
				},
				Action: runIncr,
			},
			{
				Name:  "watch",
				Usage: "Stream realtime changes at a path",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "keep-alive", Usage: "Deliver keep-alive events instead of dropping them"},
				},
				Action: runWatch,
			},
			{
				Name:   "serve",
				Usage:  "Run the local database emulator",
				Action: runServe,
			},
			{
				Name:   "mcp",
				Usage:  "Serve database tools over the Model Context Protocol (stdio)",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("command error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
