// File: cmd/wsecho/send.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type sendOptions struct {
	url     string
	text    string
	binary  string
	ping    string
	timeout time.Duration
}

func newSendCmd(a *app) *cobra.Command {
	var o sendOptions
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send one frame and print the first frame that comes back",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), o.timeout)
			defer cancel()
			reply, err := send(ctx, cmd.Flags().Changed, o, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), reply)
			return nil
		},
	}
	cmd.Flags().StringVar(&o.url, "url", "ws://localhost:9001/ws", "server URL")
	cmd.Flags().StringVar(&o.text, "text", "", "send a text message")
	cmd.Flags().StringVar(&o.binary, "binary", "", "send a binary message")
	cmd.Flags().StringVar(&o.ping, "ping", "", "send a ping with this payload")
	cmd.Flags().DurationVar(&o.timeout, "timeout", 5*time.Second, "how long to wait for a reply")
	cmd.MarkFlagsMutuallyExclusive("text", "binary", "ping")
	cmd.MarkFlagsOneRequired("text", "binary", "ping")
	return cmd
}

// send writes one frame and describes the first frame the server returns.
func send(ctx context.Context, changed func(string) bool, o sendOptions, log *zap.Logger) (string, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, o.url, nil)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", o.url, err)
	}
	defer ws.Close()

	replies := make(chan string, 1)
	offer := func(s string) {
		select {
		case replies <- s:
		default:
		}
	}
	ws.SetPongHandler(func(data string) error {
		offer(fmt.Sprintf("pong %q", data))
		return nil
	})
	readErr := make(chan error, 1)
	go func() {
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			kind := "binary"
			if mt == websocket.TextMessage {
				kind = "text"
			}
			offer(fmt.Sprintf("%s %q", kind, data))
		}
	}()

	deadline := time.Now().Add(time.Second)
	switch {
	case changed("ping"):
		err = ws.WriteControl(websocket.PingMessage, []byte(o.ping), deadline)
	case changed("binary"):
		err = ws.WriteMessage(websocket.BinaryMessage, []byte(o.binary))
	default:
		err = ws.WriteMessage(websocket.TextMessage, []byte(o.text))
	}
	if err != nil {
		return "", fmt.Errorf("write: %w", err)
	}
	log.Debug("frame sent", zap.String("url", o.url))

	var reply string
	select {
	case reply = <-replies:
	case err := <-readErr:
		return "", fmt.Errorf("read: %w", err)
	case <-ctx.Done():
		return "", errors.New("no reply before timeout")
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return reply, nil
}
