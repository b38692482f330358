package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/ideaspaper/reqkit/pkg/client"
	"github.com/ideaspaper/reqkit/pkg/errors"
	"github.com/ideaspaper/reqkit/pkg/middleware"
	"github.com/ideaspaper/reqkit/pkg/response"
)

var testBaseURL string

var testCmd = &cobra.Command{
	Use:   "test --base-url <url>",
	Short: "Run a smoke test against an httpbin-compatible server",
	Long: `Run four requests against an httpbin-compatible server: a GET, a JSON
POST, a GET with custom headers and a GET that must return 404.

Examples:
  reqkit test --base-url https://httpbin.org
  reqkit test --base-url http://localhost:8080`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := appConfig.ClientOptions(appEnv)
		if err != nil {
			return err
		}
		metrics := middleware.NewCollector(prometheus.NewRegistry())
		opts = append(opts,
			client.WithBaseURL(testBaseURL),
			client.WithLogger(logger),
			client.WithCookieStore(nil),
			client.WithMiddleware(middleware.Metrics(metrics)),
		)
		c, err := client.New(opts...)
		if err != nil {
			return err
		}
		defer c.Close()
		return runSmokeTest(cmd.Context(), cmd.OutOrStdout(), c, metrics)
	},
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVar(&testBaseURL, "base-url", "https://httpbin.org", "server to test against")
}

type smokeStep struct {
	name  string
	send  func(ctx context.Context, c *client.Client) (*response.Response, error)
	check func(resp *response.Response) error
}

var smokeSteps = []smokeStep{
	{
		name: "GET /get",
		send: func(ctx context.Context, c *client.Client) (*response.Response, error) {
			return c.Get("/get").Send(ctx)
		},
		check: expectStatus(http.StatusOK),
	},
	{
		name: "POST /post with JSON",
		send: func(ctx context.Context, c *client.Client) (*response.Response, error) {
			return c.Post("/post").JSON(map[string]string{"test": "reqkit", "version": rootCmd.Version}).Send(ctx)
		},
		check: func(resp *response.Response) error {
			if err := expectStatus(http.StatusOK)(resp); err != nil {
				return err
			}
			return expectJSON(resp, "json.test", "reqkit")
		},
	},
	{
		name: "GET /headers with custom headers",
		send: func(ctx context.Context, c *client.Client) (*response.Response, error) {
			return c.Get("/headers").
				UserAgent("reqkit-cli/" + rootCmd.Version).
				Header("X-Test-Header", "test-value").
				Send(ctx)
		},
		check: func(resp *response.Response) error {
			if err := expectStatus(http.StatusOK)(resp); err != nil {
				return err
			}
			return expectJSON(resp, "headers.X-Test-Header", "test-value")
		},
	},
	{
		name: "GET /status/404",
		send: func(ctx context.Context, c *client.Client) (*response.Response, error) {
			return c.Get("/status/404").Send(ctx)
		},
		check: expectStatus(http.StatusNotFound),
	},
}

func expectStatus(code int) func(*response.Response) error {
	return func(resp *response.Response) error {
		if resp.StatusCode != code {
			return fmt.Errorf("status %d, expected %d", resp.StatusCode, code)
		}
		return nil
	}
}

func expectJSON(resp *response.Response, path, want string) error {
	results, err := resp.Lookup(path)
	if err != nil {
		return err
	}
	if got := results[0].String(); got != want {
		return fmt.Errorf("%s is %q, expected %q", path, got, want)
	}
	return nil
}

// runSmokeTest runs every step even after a failure and reports the count.
// A non-nil metrics collector adds a latency summary.
func runSmokeTest(ctx context.Context, out io.Writer, c *client.Client, metrics *middleware.Collector) error {
	printHeader(out, "Testing reqkit against the configured server")
	fmt.Fprintln(out)

	failed := 0
	for i, step := range smokeSteps {
		label := fmt.Sprintf("%d. %s", i+1, step.name)
		if err := runStep(ctx, c, step); err != nil {
			failed++
			printTestFail(out, label, err.Error())
			continue
		}
		printTestPass(out, label)
	}

	fmt.Fprintln(out)
	if metrics != nil {
		printLatency(out, metrics.Snapshot())
	}
	if failed > 0 {
		return errors.Wrapf(errors.ErrStatus, "%d of %d checks failed", failed, len(smokeSteps))
	}
	fmt.Fprintln(out, newFormatter().FormatSuccess("All tests completed!"))
	return nil
}

func runStep(ctx context.Context, c *client.Client, step smokeStep) error {
	resp, err := step.send(ctx, c)
	if err != nil {
		return err
	}
	defer resp.Close()
	return step.check(resp)
}

func printLatency(w io.Writer, s middleware.Snapshot) {
	fmt.Fprintln(w, printDimText(fmt.Sprintf("%d requests, avg %s, p50 %s, p95 %s, p99 %s",
		s.RequestCount,
		s.AverageResponseTime.Round(time.Microsecond),
		s.P50, s.P95, s.P99,
	)))
}
