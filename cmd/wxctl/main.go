// wxctl is a small control client for the weather daemon: one-off station
// and position queries plus the admin commands, over the same UDP channel
// the simulator uses.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/skysim/noawx/internal/channel"
	"github.com/skysim/noawx/internal/config"
	"github.com/skysim/noawx/internal/engine"
	"github.com/skysim/noawx/internal/wxdata"
	"github.com/skysim/noawx/pkg/logger"
)

const responseTimeout = 5 * time.Second

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: wxctl [flags] <command>

Commands:
  station <ICAO>      fetch the latest report for a station
  position <lat> <lon>  fetch the full weather snapshot for a point
  follow <lat> <lon> [alt_m]  keep querying and print the applied weather
  reload              make the daemon re-read its configuration
  reset-metar         reinitialize the daemon's station-report source
  shutdown            stop the daemon

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	host := flag.String("host", "127.0.0.1", "daemon address")
	port := flag.Int("port", 8950, "daemon UDP port")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	log, err := logger.New(logger.Config{Level: "warn", Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	client := channel.NewClient(
		config.ServerConfig{Host: *host, Port: *port},
		config.ClientConfig{QueryIntervalSecs: 0.1},
		log,
	)
	if err := client.Start(); err != nil {
		fatal(err)
	}
	defer client.Close()

	switch cmd := flag.Arg(0); cmd {
	case "station":
		if flag.NArg() != 2 {
			usage()
			os.Exit(2)
		}
		if err := client.QueryStation(flag.Arg(1)); err != nil {
			fatal(err)
		}
		snap := awaitAdhoc(client)
		if snap == nil || snap.Metar == nil {
			fatal(fmt.Errorf("no report for %s", flag.Arg(1)))
		}
		printJSON(snap.Metar)

	case "position":
		if flag.NArg() != 3 {
			usage()
			os.Exit(2)
		}
		lat, lon, err := parsePosition(flag.Arg(1), flag.Arg(2))
		if err != nil {
			fatal(err)
		}
		if !client.Query(lat, lon) {
			fatal(fmt.Errorf("query was not sent"))
		}
		snap := awaitSnapshot(client)
		if snap == nil {
			fatal(fmt.Errorf("no answer from daemon"))
		}
		printJSON(snap)

	case "follow":
		if flag.NArg() != 3 && flag.NArg() != 4 {
			usage()
			os.Exit(2)
		}
		lat, lon, err := parsePosition(flag.Arg(1), flag.Arg(2))
		if err != nil {
			fatal(err)
		}
		altM := 0.0
		if flag.NArg() == 4 {
			altM, err = strconv.ParseFloat(flag.Arg(3), 64)
			if err != nil {
				fatal(fmt.Errorf("bad altitude %q", flag.Arg(3)))
			}
		}
		follow(client, log, lat, lon, altM)

	case "reload":
		if err := client.Reload(); err != nil {
			fatal(err)
		}
		fmt.Println("reload sent")

	case "reset-metar":
		if err := client.ResetMetar(); err != nil {
			fatal(err)
		}
		fmt.Println("reset sent")

	case "shutdown":
		if err := client.Shutdown(); err != nil {
			fatal(err)
		}
		fmt.Println("shutdown sent")

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}
}

// follow runs the same consume loop the simulator plugin runs: re-query the
// position, feed arriving snapshots to the weather engine and step it once
// per tick, printing what would be applied. Ctrl-C stops it.
func follow(client *channel.Client, log *logger.Logger, lat, lon, altM float64) {
	eng := engine.New(config.Default(), log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	const tick = time.Second
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			return
		case <-ticker.C:
		}

		client.Query(lat, lon)
		if snap, ok := client.Latest(); ok {
			eng.SetSnapshot(snap)
		}

		out := eng.Step(altM, tick.Seconds())
		if !out.Ready {
			fmt.Println("waiting for weather data")
			continue
		}
		fmt.Printf("wind %03.0f°/%.0fkt gust %.0fkt  qnh %.2finHg  vis %.0fm  rain %.0f%%  turb %.2f\n",
			out.Winds[0].HeadingDeg, out.Winds[0].SpeedKt, out.Winds[0].GustKt,
			out.PressureInHg, out.VisibilityM, out.RainPct, out.Winds[0].Turbulence)
	}
}

func parsePosition(latStr, lonStr string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad latitude %q", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("bad longitude %q", lonStr)
	}
	return lat, lon, nil
}

func awaitAdhoc(client *channel.Client) *wxdata.Snapshot {
	deadline := time.Now().Add(responseTimeout)
	for time.Now().Before(deadline) {
		if snaps := client.DrainAdhoc(); len(snaps) > 0 {
			return snaps[len(snaps)-1]
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

func awaitSnapshot(client *channel.Client) *wxdata.Snapshot {
	deadline := time.Now().Add(responseTimeout)
	for time.Now().Before(deadline) {
		if snap, ok := client.Latest(); ok {
			return snap
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(data))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "wxctl: %v\n", err)
	os.Exit(1)
}
