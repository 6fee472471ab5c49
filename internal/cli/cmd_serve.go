package cli

import (
	"context"
	"os"

	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/delfador0x42/amaranthine/internal/engine"
	"github.com/delfador0x42/amaranthine/internal/rpcserver"
)

// ServeCmd returns the `serve` command, which runs the line-delimited
// JSON-RPC tool server over stdin/stdout until stdin reaches EOF.
func ServeCmd(eng *engine.Engine) *Command {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)

	return &Command{
		Flags: fs,
		Usage: "serve",
		Short: "Run the JSON-RPC tool server over stdin/stdout",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			srv := rpcserver.New(eng, zap.NewNop())
			return srv.Serve(ctx, os.Stdin, os.Stdout)
		},
	}
}
