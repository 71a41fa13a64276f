// stackctl drives a running stackd over its HTTP API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	serverBase string
	natsURL    string
	tmplFile   string

	logger *zap.Logger
)

func main() {
	var err error
	logger, err = zap.NewDevelopment()
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	root := &cobra.Command{
		Use:           "stackctl",
		Short:         "Control a stackd provisioner",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverBase, "server", "http://localhost:8080", "stackd base URL")
	root.PersistentFlags().StringVar(&natsURL, "nats", "nats://localhost:4222", "NATS URL for CLI events")

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Show what an apply would do",
		RunE:  func(cmd *cobra.Command, args []string) error { return postTemplate("/plan") },
	}
	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Provision the template",
		RunE:  runApply,
	}
	destroyCmd := &cobra.Command{
		Use:   "destroy",
		Short: "Tear down recorded resources",
		RunE:  func(cmd *cobra.Command, args []string) error { return postTemplate("/destroy") },
	}
	lintCmd := &cobra.Command{
		Use:   "lint",
		Short: "Run policy checks against the template",
		RunE:  func(cmd *cobra.Command, args []string) error { return postTemplate("/lint") },
	}
	for _, c := range []*cobra.Command{planCmd, applyCmd, destroyCmd, lintCmd} {
		c.Flags().StringVarP(&tmplFile, "file", "f", "", "template JSON file (default: built-in template)")
	}

	resourcesCmd := &cobra.Command{
		Use:   "resources DEPLOYMENT",
		Short: "List recorded state for a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/resources?deployment=" + args[0])
		},
	}
	pingCmd := &cobra.Command{
		Use:   "ping",
		Short: "Check stackd health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/health")
		},
	}

	root.AddCommand(planCmd, applyCmd, destroyCmd, lintCmd, resourcesCmd, pingCmd)

	if err := root.Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func runApply(cmd *cobra.Command, args []string) error {
	if err := postTemplate("/apply"); err != nil {
		return err
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		logger.Debug("nats unreachable, skipping CLI event", zap.Error(err))
		return nil
	}
	defer nc.Drain()
	ev := map[string]any{"event": "cli.apply", "server": serverBase}
	b, _ := json.Marshal(ev)
	_ = nc.Publish("cli.events", b)
	return nil
}

func templateBody() (io.Reader, error) {
	if tmplFile == "" {
		return bytes.NewReader(nil), nil
	}
	data, err := os.ReadFile(tmplFile)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	return bytes.NewReader(data), nil
}

func postTemplate(path string) error {
	body, err := templateBody()
	if err != nil {
		return err
	}
	resp, err := http.Post(serverBase+path, "application/json", body)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func getJSON(path string) error {
	resp, err := http.Get(serverBase + path)
	if err != nil {
		return fmt.Errorf("http error: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if json.Indent(&buf, data, "", "  ") == nil {
		data = buf.Bytes()
	}
	fmt.Println(string(data))
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
