package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"traffic-light/internal/domain/light"
	"traffic-light/internal/transport/httpdto"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v2"
)

var publishCommand = &cli.Command{
	Name:      "publish",
	Usage:     "Sets the traffic light color",
	ArgsUsage: "<green|yellow|red>",
	Flags:     []cli.Flag{timeoutFlag},
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.Exit("expected exactly one color argument", 2)
		}
		reqCtx, cancel := context.WithTimeout(ctx.Context, ctx.Duration(timeoutFlag.Name))
		defer cancel()

		if err := publish(reqCtx, http.DefaultClient, ctx.String(serverFlag.Name), ctx.Args().First()); err != nil {
			return err
		}
		fmt.Fprintf(ctx.App.Writer, "published %s\n", ctx.Args().First())
		return nil
	},
}

// publish posts color to the relay. The color is checked locally first so
// typos never leave the machine.
func publish(ctx context.Context, client *http.Client, baseURL, color string) error {
	if _, err := light.ParseColor(color); err != nil {
		return err
	}
	body, err := json.Marshal(httpdto.UpdateLightRequest{Color: color})
	if err != nil {
		return err
	}

	url := strings.TrimRight(baseURL, "/") + "/update-traffic-light"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return err
	}
	var status httpdto.StatusResponse
	if err := json.Unmarshal(raw, &status); err != nil {
		return fmt.Errorf("unexpected response (%d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if resp.StatusCode != http.StatusOK || status.Status != httpdto.StatusOK {
		return fmt.Errorf("publish rejected (%d): %s", resp.StatusCode, status.Detail)
	}
	return nil
}
