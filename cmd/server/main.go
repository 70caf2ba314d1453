package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/shiftsync/internal/flagx"
	"github.com/dmitrijs2005/shiftsync/internal/server"
	"github.com/dmitrijs2005/shiftsync/internal/server/config"
)

func main() {
	var issue string
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	fs.StringVar(&issue, "issue", "", "print an access token for the given user and exit")
	if err := fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-issue", "--issue"})); err != nil {
		log.Fatal(err)
	}

	cfg := config.LoadConfig()

	if issue != "" {
		tok, err := server.IssueToken(cfg, issue)
		if err != nil {
			log.Fatal(err)
		}
		fmt.Println(tok)
		return
	}

	ctx := context.Background()
	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := app.Run(ctx); err != nil {
		log.Fatal(err)
	}
}
