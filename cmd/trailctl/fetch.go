package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type fetchOptions struct {
	server  string
	token   string
	asJSON  bool
	timeout time.Duration
}

func newFetchCmd() *cobra.Command {
	opts := fetchOptions{}
	cmd := &cobra.Command{
		Use:   "fetch <id>",
		Short: "Retrieve one trail from a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.token == "" {
				opts.token = os.Getenv("AUDITTRAIL_ADMIN_TOKEN")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			return fetch(ctx, http.DefaultClient, opts, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "audittrail server base URL")
	cmd.Flags().StringVar(&opts.token, "token", "", "admin token (default $AUDITTRAIL_ADMIN_TOKEN)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print the raw record instead of a tree")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

func fetch(ctx context.Context, client *http.Client, opts fetchOptions, id string, out io.Writer) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid trail id %q: %w", id, err)
	}
	target, err := url.JoinPath(opts.server, "trails", id)
	if err != nil {
		return fmt.Errorf("build url: %w", err)
	}
	if !opts.asJSON {
		target += "?format=tree"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Admin-Token", opts.token)
	req.Header.Set("User-Agent", "trailctl")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch trail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("fetch trail: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	_, err = io.Copy(out, resp.Body)
	return err
}
