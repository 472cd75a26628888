package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/hostbridge/client"
	"pkt.systems/hostbridge/internal/codec"
	"pkt.systems/hostbridge/schema"
)

const defaultBridgeAddr = "127.0.0.1:8080"

type clientFlags struct {
	addr    string
	timeout time.Duration
}

func (f *clientFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.addr, "addr", "a", defaultBridgeAddr, "bridge address (host:port or URL)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Second, "request timeout")
}

func (f *clientFlags) dial(ctx context.Context) (*client.Client, context.Context, context.CancelFunc, error) {
	c, err := client.New(f.addr)
	if err != nil {
		return nil, nil, nil, err
	}
	if f.timeout <= 0 {
		ctx, cancel := context.WithCancel(ctx)
		return c, ctx, cancel, nil
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	return c, ctx, cancel, nil
}

func newCallCmd() *cobra.Command {
	var flags clientFlags
	var paramsJSON string
	var oneShot bool
	cmd := &cobra.Command{
		Use:   "call METHOD [name=value ...]",
		Short: "Send one command to a running bridge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := buildParams(paramsJSON, args[1:])
			if err != nil {
				return err
			}
			c, ctx, cancel, err := flags.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()

			method := schema.Method(args[0])
			var out string
			if oneShot {
				out, err = c.CallHTTP(ctx, method, params)
			} else {
				out, err = c.Call(ctx, method, params)
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&paramsJSON, "params", "", "parameters as a JSON object")
	cmd.Flags().BoolVar(&oneShot, "http", false, "use the one-shot POST transport")
	return cmd
}

func newPingCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that a bridge is listening",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := flags.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			if err := c.Ping(ctx); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "pong")
			return err
		},
	}
	flags.bind(cmd)
	return cmd
}

func newMethodsCmd() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "methods",
		Short: "List the commands a bridge exposes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := flags.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer cancel()
			methods, err := c.Methods(ctx)
			if err != nil {
				return err
			}
			for _, m := range methods {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), m); err != nil {
					return err
				}
			}
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

// buildParams merges a JSON object with name=value arguments. Arguments win.
func buildParams(paramsJSON string, pairs []string) (schema.Params, error) {
	params := schema.Params{}
	if strings.TrimSpace(paramsJSON) != "" {
		decoded, err := codec.DecodeParams([]byte(paramsJSON))
		if err != nil {
			return nil, fmt.Errorf("--params: %w", err)
		}
		params = decoded
	}
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("parameter %q must be name=value", pair)
		}
		params[name] = codec.ParseValue(value)
	}
	return params, nil
}
