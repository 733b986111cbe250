// Kunhua Huang 2026

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/urfave/cli"

	"github.com/ecstasoy/rpcbind/pkg/client"
	"github.com/ecstasoy/rpcbind/pkg/config"
	"github.com/ecstasoy/rpcbind/pkg/loadbalancer"
	"github.com/ecstasoy/rpcbind/pkg/proxy"
	"github.com/ecstasoy/rpcbind/pkg/reference"
)

var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
)

func printFatal(msg string, args ...interface{}) {
	fmt.Fprintln(stderr, red(fmt.Sprintf(msg, args...)))
	exit(1)
}

func red(s string) string {
	return color.New(color.FgHiRed).SprintFunc()(s)
}

func green(s string) string {
	return color.New(color.FgHiGreen).SprintFunc()(s)
}

func cyan(s string) string {
	return color.New(color.FgHiCyan).SprintFunc()(s)
}

var targetFlags = []cli.Flag{
	cli.StringFlag{Name: "config, c", Usage: "YAML configuration file"},
	cli.StringSliceFlag{Name: "endpoint, e", Usage: "fixed host:port, may repeat"},
	cli.StringFlag{Name: "service, s", Usage: "service name resolved through the registry"},
	cli.StringFlag{Name: "version", Usage: "semver constraint on the resolved instance"},
	cli.StringFlag{Name: "facet", Usage: "facet of the target object"},
	cli.DurationFlag{Name: "timeout, t", Value: 5 * time.Second},
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

// newProxy builds a client from the flags and a proxy for identity.
func newProxy(c *cli.Context, identity string, extra ...reference.Option) (*client.Client, *proxy.Proxy, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	cl, err := client.FromConfig(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []reference.Option{reference.WithTimeout(c.Duration("timeout"))}
	if eps := c.StringSlice("endpoint"); len(eps) > 0 {
		opts = append(opts, reference.WithEndpoints(eps...))
	}
	if service := c.String("service"); service != "" {
		opts = append(opts, reference.WithService(service))
	}
	if version := c.String("version"); version != "" {
		opts = append(opts, reference.WithVersion(version))
	}
	if facet := c.String("facet"); facet != "" {
		opts = append(opts, reference.WithFacet(facet))
	}

	p, err := cl.ProxyFor(identity, append(opts, extra...)...)
	if err != nil {
		cl.Close()
		return nil, nil, err
	}
	return cl, p, nil
}

func callCommand(c *cli.Context) (err error) {
	if c.NArg() < 2 {
		return cli.NewExitError(red("usage: rpcbind call [flags] IDENTITY METHOD [JSON-ARGS]"), 1)
	}
	identity, method := c.Args().Get(0), c.Args().Get(1)

	var args interface{}
	if raw := c.Args().Get(2); raw != "" {
		if err = json.Unmarshal([]byte(raw), &args); err != nil {
			return cli.NewExitError(red("arguments are not valid JSON: "+err.Error()), 1)
		}
	}

	mode, err := reference.ParseMode(c.String("mode"))
	if err != nil {
		return cli.NewExitError(red(err.Error()), 1)
	}

	cl, p, err := newProxy(c, identity, reference.WithMode(mode))
	if err != nil {
		return cli.NewExitError(red(err.Error()), 1)
	}
	defer cl.Close()

	ctx := context.Background()
	if !mode.IsBatch() && mode != reference.ModeTwoWay {
		if _, err = p.Invoke(ctx, method, args); err != nil {
			return cli.NewExitError(red(err.Error()), 1)
		}
		fmt.Println(green("sent"))
		return nil
	}
	if mode.IsBatch() {
		if _, err = p.Invoke(ctx, method, args); err != nil {
			return cli.NewExitError(red(err.Error()), 1)
		}
		if err = p.FlushBatchRequests(ctx); err != nil {
			return cli.NewExitError(red(err.Error()), 1)
		}
		fmt.Println(green("flushed"))
		return nil
	}

	var reply interface{}
	if err = p.InvokeInto(ctx, method, args, &reply); err != nil {
		return cli.NewExitError(red(err.Error()), 1)
	}
	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return cli.NewExitError(red(err.Error()), 1)
	}
	fmt.Println(string(out))
	return nil
}

func resolveCommand(c *cli.Context) (err error) {
	if c.NArg() < 1 {
		return cli.NewExitError(red("usage: rpcbind resolve [flags] IDENTITY"), 1)
	}

	cl, p, err := newProxy(c, c.Args().Get(0))
	if err != nil {
		return cli.NewExitError(red(err.Error()), 1)
	}
	defer cl.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()
	if err = client.Ping(ctx, p); err != nil {
		return cli.NewExitError(red(err.Error()), 1)
	}

	fmt.Println(cyan(p.Reference().String()), green("bound"))
	for _, stats := range cl.PoolStats() {
		fmt.Println("  " + stats.String())
	}
	return nil
}

func checkConfigCommand(c *cli.Context) (err error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.NewExitError(red(err.Error()), 1)
	}
	fmt.Printf("registry %s, balancer %s, pool max %d\n",
		cyan(cfg.Registry.Type), cyan(orDefault(cfg.Client.LoadBalancer, loadbalancer.RoundRobin)), cfg.Pool.MaxSize)
	fmt.Println(green("ok"))
	return nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func main() {
	app := cli.NewApp()
	app.Name = "rpcbind"
	app.Usage = "bind references to connections and invoke remote objects"
	app.Version = "0.1.0"
	app.Commands = []cli.Command{
		cli.Command{
			Name:      "call",
			Usage:     "invoke METHOD on IDENTITY and print the reply",
			ArgsUsage: "IDENTITY METHOD [JSON-ARGS]",
			Flags: append([]cli.Flag{
				cli.StringFlag{Name: "mode, m", Value: "twoway", Usage: "twoway, oneway, batch-oneway, datagram or batch-datagram"},
			}, targetFlags...),
			Action: callCommand,
		},
		cli.Command{
			Name:      "resolve",
			Usage:     "bind IDENTITY and show the pooled connections",
			ArgsUsage: "IDENTITY",
			Flags:     targetFlags,
			Action:    resolveCommand,
		},
		cli.Command{
			Name:   "check-config",
			Flags:  []cli.Flag{cli.StringFlag{Name: "config, c"}},
			Action: checkConfigCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		printFatal("%v", err)
	}
}
