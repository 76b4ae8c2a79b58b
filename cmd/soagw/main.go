package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/broady/soagw"
	"github.com/broady/soagw/internal/config"
	"github.com/broady/soagw/internal/demo"
	"github.com/broady/soagw/soagen/sink"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config string `help:"Path to a YAML configuration file." short:"c" type:"path"`
}

type CLI struct {
	Globals

	Version VersionCmd `cmd:"" help:"Print version information."`
	Serve   ServeCmd   `cmd:"" help:"Serve the demo operations over HTTP."`
	Schema  SchemaCmd  `cmd:"" help:"Print the request schema of an operation."`
	WSDL    WSDLCmd    `cmd:"" name:"wsdl" help:"Print the service description of an operation."`
	Export  ExportCmd  `cmd:"" help:"Write the schema and description of every operation to a directory."`
}

type VersionCmd struct{}

func (c *VersionCmd) Run(out io.Writer) error {
	_, err := fmt.Fprintln(out, Version())
	return err
}

type SchemaCmd struct {
	Operation string `arg:"" help:"Operation name."`
}

func (c *SchemaCmd) Run(g *Globals, out io.Writer) error {
	_, gw, err := g.gateway(io.Discard)
	if err != nil {
		return err
	}
	doc, err := gw.Schema(c.Operation)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, doc)
	return err
}

type WSDLCmd struct {
	Operation string `arg:"" help:"Operation name."`
	Endpoint  string `help:"Service address written into the description; overrides the config file."`
}

func (c *WSDLCmd) Run(g *Globals, out io.Writer) error {
	cfg, gw, err := g.gateway(io.Discard)
	if err != nil {
		return err
	}
	doc, err := gw.Description(c.Operation, endpoint(cfg, c.Endpoint))
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, doc)
	return err
}

type ExportCmd struct {
	Dir       string `arg:"" help:"Output directory." type:"path"`
	Endpoint  string `help:"Service address written into descriptions; overrides the config file."`
	NoClobber bool   `help:"Fail instead of replacing existing files." name:"no-clobber"`
}

func (c *ExportCmd) Run(g *Globals, out io.Writer) error {
	cfg, gw, err := g.gateway(os.Stderr)
	if err != nil {
		return err
	}
	dir := sink.NewDir(c.Dir)
	dir.Overwrite = !c.NoClobber
	if err := gw.Export(context.Background(), dir, endpoint(cfg, c.Endpoint)); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "exported %d operations to %s\n", len(gw.Operations()), c.Dir)
	return err
}

// gateway loads the configuration and returns a gateway serving the demo
// operations, logging to logOut.
func (g *Globals) gateway(logOut io.Writer) (*config.Config, *soagw.Gateway, error) {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, nil, err
	}
	gw := soagw.New(cfg.Namespace).
		WithLogger(cfg.Log.Logger(logOut)).
		WithMaxRequestBodySize(cfg.MaxRequestBodySize)
	if cfg.MaskInternalErrors {
		gw.WithMaskInternalErrors()
	}
	if err := demo.Register(gw); err != nil {
		return nil, nil, err
	}
	return cfg, gw, nil
}

// endpoint picks the service address for descriptions built outside a
// request: the flag, then the config file, then the listen address.
func endpoint(cfg *config.Config, flag string) string {
	switch {
	case flag != "":
		return flag
	case cfg.Endpoint != "":
		return cfg.Endpoint
	}
	host := cfg.Listen
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	return "http://" + host + "/"
}

func newParser(cli *CLI, out io.Writer) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("soagw"),
		kong.Description("SOAP 1.1 document/literal gateway."),
		kong.UsageOnError(),
		kong.Bind(&cli.Globals),
		kong.BindTo(out, (*io.Writer)(nil)),
	)
}

func main() {
	cli := &CLI{}
	parser, err := newParser(cli, os.Stdout)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	ctx.FatalIfErrorf(ctx.Run())
}
