package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/natashamaes/concierge/internal/api"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Open a widget and send a typed message",
	Long: `Open a chat widget, send one typed message and print the transcript.

Examples:
  widgetclient chat "Do you host weddings?"
  widgetclient chat --speak --out reply.pcm "What are your Saturday rates?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		speak, _ := cmd.Flags().GetBool("speak")
		out, _ := cmd.Flags().GetString("out")

		widget, err := openWidget()
		if err != nil {
			return err
		}
		defer closeWidget(widget)

		reply, err := sendMessage(widget, strings.Join(args, " "), speak)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", reply.Reply.Role, reply.Reply.Text)

		if len(reply.Audio) > 0 && out != "" {
			if err := os.WriteFile(out, reply.Audio, 0644); err != nil {
				return err
			}
			logger.Info("Saved spoken reply", zap.String("file", out), zap.Int("bytes", len(reply.Audio)))
		}
		return nil
	},
}

func init() {
	chatCmd.Flags().Bool("speak", false, "ask for a spoken reply")
	chatCmd.Flags().StringP("out", "o", "", "write spoken reply PCM to this file")
}

func openWidget() (*api.WidgetResponse, error) {
	var widget api.WidgetResponse
	if err := callAPI(http.MethodPost, "/api/v1/widgets", "", nil, http.StatusCreated, &widget); err != nil {
		return nil, fmt.Errorf("open widget: %w", err)
	}
	logger.Info("Widget opened", zap.String("widget_id", widget.WidgetID))
	for _, entry := range widget.Transcript {
		fmt.Printf("%s: %s\n", entry.Role, entry.Text)
	}
	return &widget, nil
}

func closeWidget(widget *api.WidgetResponse) {
	if err := callAPI(http.MethodDelete, "/api/v1/widgets/"+widget.WidgetID, widget.Token, nil, http.StatusNoContent, nil); err != nil {
		logger.Warn("Failed to close widget", zap.Error(err))
	}
}

func sendMessage(widget *api.WidgetResponse, text string, speak bool) (*api.ChatResponse, error) {
	var reply api.ChatResponse
	req := api.ChatRequest{Message: text, Speak: speak}
	if err := callAPI(http.MethodPost, "/api/v1/widgets/"+widget.WidgetID+"/messages", widget.Token, req, http.StatusOK, &reply); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &reply, nil
}

func callAPI(method, path, token string, body interface{}, wantStatus int, out interface{}) error {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, strings.TrimRight(serverURL, "/")+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != wantStatus {
		var apiErr api.ErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", apiErr.Error, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
