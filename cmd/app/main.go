package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pwnholic/invsnap/internal"
	"github.com/pwnholic/invsnap/internal/clients"
)

func init() {
	internal.InitDefaultLogger(internal.INFO)
}

func main() {
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: invsnap -i <invoice.json> | -b <file> | -serve <addr>")
		fmt.Fprintln(os.Stderr, "Options:")
		flag.PrintDefaults()
	}

	startTime := time.Now()
	customFlag := parseFlag()
	if customFlag.Verbose {
		internal.GetDefaultLogger().SetLevel(internal.DEBUG)
	}

	httpCfg := customFlag.Config.HTTP
	httpOpts := &clients.HTTPClientOptions{
		RetryCount:       httpCfg.RetryCount,
		RetryWaitTime:    httpCfg.RetryWait,
		RetryMaxWaitTime: httpCfg.RetryMaxWait,
		TimeOut:          httpCfg.Timeout,
		UserAgent:        httpCfg.UserAgent,
	}

	process, err := NewGenerateProcess(httpOpts, customFlag)
	if err != nil {
		internal.ErrorLog("Something went wrong : %s", err.Error())
		os.Exit(1)
	}

	err = process.processGenerate(customFlag)
	process.Close()
	if err != nil {
		internal.ErrorLog("Something went wrong : %s", err.Error())
		os.Exit(1)
	}
	internal.SuccessLog("Program completed in %v\n", time.Since(startTime))
}
