package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var postbackCmd = &cobra.Command{
	Use:   "postback",
	Short: "Postback tooling",
}

var postbackSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Replay a captured postback body to an ingestor",
	Long: `Post a captured gateway postback to the postback endpoint. Reconciliation
is idempotent, so replaying a postback that was already applied is safe.
Use --body @file to read the body from a file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := readBody(postbackBody)
		if err != nil {
			return err
		}
		status, response, err := sendPostback(cmd.Context(), postbackURL, postbackContentType, body)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", status, response)
		if status != http.StatusOK {
			return fmt.Errorf("postback rejected with status %d", status)
		}
		return nil
	},
}

var (
	postbackURL         string
	postbackBody        string
	postbackContentType string
	postbackTimeout     time.Duration
)

func readBody(arg string) (string, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read body file: %w", err)
		}
		return string(data), nil
	}
	return arg, nil
}

// sendPostback returns the ingestor's status code and response body.
func sendPostback(ctx context.Context, url, contentType, body string) (int, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, postbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("failed to send postback: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, "", fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, strings.TrimSpace(string(respBody)), nil
}

func init() {
	postbackSendCmd.Flags().StringVar(&postbackURL, "url", "http://localhost:8080/api/v1/payments/postback", "Postback endpoint")
	postbackSendCmd.Flags().StringVar(&postbackBody, "body", "", "Postback body, or @file")
	postbackSendCmd.Flags().StringVar(&postbackContentType, "content-type", "text/plain", "Content-Type header")
	postbackSendCmd.Flags().DurationVar(&postbackTimeout, "timeout", 10*time.Second, "Request timeout")
	_ = postbackSendCmd.MarkFlagRequired("body")

	postbackCmd.AddCommand(postbackSendCmd)
	rootCmd.AddCommand(postbackCmd)
}
