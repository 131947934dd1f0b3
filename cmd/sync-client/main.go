package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/goccy/go-json"

	"anipink/internal/session"
	"anipink/pkg/logging"
	"anipink/pkg/utils"
)

type anyEvent map[string]any

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "TCP sync server address")
	token := flag.String("token", "", "bearer token (defaults to the saved CLI login)")
	pretty := flag.Bool("pretty", true, "pretty print JSON events")
	flag.Parse()

	logging.Init(logging.Config{Level: "info", Format: "console"})
	log := logging.Component("sync-client")

	if *token == "" {
		cfg, err := utils.LoadClientConfig()
		if err != nil {
			log.Fatal().Err(err).Msg("config")
		}
		saved, ok, err := session.LoadToken(cfg.TokenPath)
		if err != nil || !ok {
			log.Fatal().Err(err).Msg("no token: pass -token or run `anipink login` first")
		}
		*token = saved.Token
	}

	for {
		if err := run(*addr, *token, *pretty); err != nil {
			log.Warn().Err(err).Msg("disconnected")
		}
		time.Sleep(1 * time.Second) // auto reconnect
	}
}

func run(addr, token string, pretty bool) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	hello, _ := json.Marshal(map[string]string{"type": "auth", "token": token})
	if _, err := conn.Write(append(hello, '\n')); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}

	log := logging.Component("sync-client")
	log.Info().Str("addr", addr).Msg("connected")

	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Bytes()

		if !pretty {
			fmt.Println(string(line))
			continue
		}

		var obj anyEvent
		if err := json.Unmarshal(line, &obj); err != nil {
			// not JSON? print raw
			fmt.Println(string(line))
			continue
		}
		if obj["type"] == "error" {
			return fmt.Errorf("server: %v", obj["message"])
		}

		b, _ := json.MarshalIndent(obj, "", "  ")
		fmt.Println(string(b))
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}
