/*
   rss-funnel - a filtering proxy for RSS, Atom and JSON feeds
   Copyright (C) 2025  rss-funnel contributors

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with this program.  If not, see <http://www.gnu.org/licenses/>.
*/

/*
Funneld serves configured feed endpoints over HTTP.
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/rssfunnel/funnel/pkg/config"
	"github.com/rssfunnel/funnel/pkg/server"
)

const defaultBind = "127.0.0.1:4080"

func init() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd, args := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "server":
		err = cmdServer(args)
	case "health-check":
		err = cmdHealthCheck(args)
	case "version":
		fmt.Printf("funneld %s\n", BuildVersion())
		return
	case "help", "--help", "-h":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Printf("%v", err)
		os.Exit(exitCode(err))
	}
}

// exitCode separates configuration mistakes from everything else so
// wrapper scripts and init systems can tell them apart.
func exitCode(err error) int {
	var cfgErr *config.Error
	if errors.As(err, &cfgErr) {
		return 1
	}
	return 2
}

func usage() {
	fmt.Fprint(os.Stderr, `funneld - a filtering proxy for RSS, Atom and JSON feeds

Usage:
  funneld server [-bind addr] [-config file] [-watch]
  funneld health-check [-bind addr]
  funneld version

The bind address and configuration file can also be set with the
RSS_FUNNEL_BIND and RSS_FUNNEL_CONFIG environment variables.
`)
}

func cmdServer(args []string) error {
	var opts server.Options

	fs := flag.NewFlagSet("server", flag.ExitOnError)
	fs.StringVar(&opts.Bind, "bind", "", "address to listen on")
	fs.StringVar(&opts.ConfigPath, "config", "", "path to the configuration file")
	fs.BoolVar(&opts.Watch, "watch", false, "reload when the configuration file changes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if opts.Bind == "" {
		if envVar, e := os.LookupEnv("RSS_FUNNEL_BIND"); e {
			opts.Bind = envVar
		} else {
			opts.Bind = defaultBind
		}
	}

	if opts.ConfigPath == "" {
		if envVar, e := os.LookupEnv("RSS_FUNNEL_CONFIG"); e {
			opts.ConfigPath = envVar
		} else {
			return errors.New("RSS_FUNNEL_CONFIG environment variable not found, use env var or -config file option")
		}
	}

	log.Println("funneld - rss-funnel server")

	app, err := server.NewApp(opts)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return app.Run(ctx)
}

func cmdHealthCheck(args []string) error {
	var bind string

	fs := flag.NewFlagSet("health-check", flag.ExitOnError)
	fs.StringVar(&bind, "bind", "", "address the server listens on")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if bind == "" {
		if envVar, e := os.LookupEnv("RSS_FUNNEL_BIND"); e {
			bind = envVar
		} else {
			bind = defaultBind
		}
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health-check", bind))
	if err != nil {
		return errors.Wrap(err, "health check")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("health check: status %d", resp.StatusCode)
	}

	fmt.Println("ok")
	return nil
}
