package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/emberchat/emberchat/broker"
	"github.com/emberchat/emberchat/config"
	"github.com/emberchat/emberchat/globals"
	"github.com/emberchat/emberchat/persistence"
	"github.com/emberchat/emberchat/ws"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "http service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key (optional)")
)

func main() {
	log.SetFlags(0)

	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	if globalConfig.LogLevel != "" {
		globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))
	}

	persister, err := persistence.NewPersister(globalConfig)
	if err != nil {
		panic(err)
	}
	if persister != nil {
		defer persister.Close()
	}

	b, err := broker.New(globalConfig, persister)
	if err != nil {
		panic(err)
	}
	if err := b.Start(); err != nil {
		panic(err)
	}
	defer b.Stop()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		b.Stop()
		if persister != nil {
			persister.Close()
		}
		log.Fatal("interrupted!")
	}()

	handler := ws.NewHandler(b)
	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, handler.Routes())
	} else {
		err = http.ListenAndServe(*addr, handler.Routes())
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}
