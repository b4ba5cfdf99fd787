package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/7blacky7/graphrt/cmd"
	_ "github.com/7blacky7/graphrt/gpu/emulated"
)

func main() {
	cobra.CheckErr(cmd.NewCLI().ExecuteContext(context.Background()))
}
