package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/browser"
	"github.com/sarchlab/sessionprof/monitoring"
	"github.com/spf13/cobra"
)

var monitorAddr string

var httpClient = &http.Client{Timeout: 30 * time.Second}

var beginCmd = &cobra.Command{
	Use:   "begin",
	Short: "Begin a session on a running monitor.",
	Run: func(_ *cobra.Command, _ []string) {
		rsp, err := post("/api/profiling/begin")
		if err != nil {
			log.Fatalf("Error beginning session: %v", err)
		}
		defer rsp.Body.Close()

		switch rsp.StatusCode {
		case http.StatusNoContent:
			okColor.Println("Profiling session started.")
		case http.StatusConflict:
			warnColor.Println("A profiling session is already running.")
		default:
			log.Fatalf("Error beginning session: %s", readError(rsp))
		}
	},
}

var finishCmd = &cobra.Command{
	Use:   "finish",
	Short: "Finish the session of a running monitor and save its report.",
	Run: func(cmd *cobra.Command, _ []string) {
		rsp, err := post("/api/profiling/finish")
		if err != nil {
			log.Fatalf("Error finishing session: %v", err)
		}
		defer rsp.Body.Close()

		switch rsp.StatusCode {
		case http.StatusOK:
		case http.StatusConflict:
			warnColor.Println("No profiling session is running.")
			return
		default:
			log.Fatalf("Error finishing session: %s", readError(rsp))
		}

		var summary monitoring.Summary
		if err := json.NewDecoder(rsp.Body).Decode(&summary); err != nil {
			log.Fatalf("Error reading summary: %v", err)
		}

		link := resolveLink(summary.Link)
		okColor.Printf("Saved %s with %d events\n", summary.Name, summary.Events)
		linkColor.Println(link)

		if open, _ := cmd.Flags().GetBool("open"); open {
			if err := browser.OpenURL(link); err != nil {
				warnColor.Printf("Could not open the browser: %v\n", err)
			}
		}
	},
}

func init() {
	for _, c := range []*cobra.Command{beginCmd, finishCmd} {
		c.Flags().StringVar(&monitorAddr, "addr", "http://localhost:8080",
			"address of the monitor")
		rootCmd.AddCommand(c)
	}

	finishCmd.Flags().Bool("open", false, "open the report in the browser")
}

func post(route string) (*http.Response, error) {
	url := strings.TrimRight(monitorAddr, "/") + route
	return httpClient.Post(url, "application/json", nil)
}

func readError(rsp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(rsp.Body, 4096))
	return fmt.Sprintf("%s: %s", rsp.Status, strings.TrimSpace(string(body)))
}

// resolveLink turns a link relative to the monitor into a full address.
func resolveLink(link string) string {
	if strings.HasPrefix(link, "/") {
		return strings.TrimRight(monitorAddr, "/") + link
	}

	return link
}
