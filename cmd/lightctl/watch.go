package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"traffic-light/internal/domain/light"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"
)

var watchCommand = &cli.Command{
	Name:  "watch",
	Usage: "Streams traffic light updates until interrupted",
	Flags: []cli.Flag{countFlag, noColorFlag},
	Action: func(ctx *cli.Context) error {
		if ctx.Bool(noColorFlag.Name) {
			color.NoColor = true
		}
		return watch(ctx.Context, ctx.String(serverFlag.Name), ctx.Int(countFlag.Name), ctx.App.Writer)
	},
}

// streamURL turns the relay base URL into the websocket endpoint.
func streamURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http", "":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path += "/traffic-light"
	return u.String(), nil
}

// watch prints each update until ctx ends, the server closes the stream, or
// count updates were printed.
func watch(ctx context.Context, baseURL string, count int, out io.Writer) error {
	endpoint, err := streamURL(baseURL)
	if err != nil {
		return err
	}
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", endpoint, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stop()

	for seen := 0; count <= 0 || seen < count; {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		event, err := light.DecodeEvent(frame)
		if err != nil {
			fmt.Fprintf(out, "? %s\n", frame)
			continue
		}
		fmt.Fprintln(out, render(event))
		seen++
	}
	return nil
}

var palette = map[light.Color]*color.Color{
	light.Green:  color.New(color.FgGreen, color.Bold),
	light.Yellow: color.New(color.FgYellow, color.Bold),
	light.Red:    color.New(color.FgRed, color.Bold),
}

func render(event light.Event) string {
	c, ok := palette[event.Color]
	if !ok {
		return event.Color.String()
	}
	return c.Sprintf("● %s", event.Color)
}
