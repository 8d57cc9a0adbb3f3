// Command client is a simple test client for the puck server.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/LemmyAI/puckserver/internal/framing"
	"github.com/LemmyAI/puckserver/internal/protocol"
)

func main() {
	serverAddr := flag.String("addr", "localhost:9000", "server address")
	pingEvery := flag.Duration("ping", time.Second, "keep-alive ping interval")
	verbose := flag.Bool("v", false, "log every received packet")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		logger.Fatal("dial failed", zap.String("addr", *serverAddr), zap.Error(err))
	}
	defer conn.Close()

	logger.Info("🎮 connected", zap.String("addr", *serverAddr))

	c := &client{
		conn: conn,
		reg:  protocol.DefaultRegistry(),
		w:    framing.NewWriter(conn),
		log:  logger,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.receive(*verbose)
	}()
	go c.keepAlive(*pingEvery, done)

	fmt.Println("\n🏒 Commands: puck <x> <y> <mx> <my>, ping, quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "quit":
			c.send(protocol.Disconnect{})
			<-done
			logger.Info("👋 goodbye")
			return
		case "ping":
			c.send(protocol.Ping{})
		case "puck":
			var p protocol.PuckPosition
			if _, err := fmt.Sscan(strings.Join(fields[1:], " "), &p.PosX, &p.PosY, &p.MotionX, &p.MotionY); err != nil {
				logger.Warn("usage: puck <x> <y> <mx> <my>", zap.Error(err))
				continue
			}
			c.send(p)
		default:
			logger.Warn("unknown command", zap.String("cmd", fields[0]))
		}
	}
}

type client struct {
	conn net.Conn
	reg  *protocol.Registry
	log  *zap.Logger

	mu sync.Mutex
	w  *framing.Writer
}

func (c *client) send(p protocol.Packet) {
	payload, err := c.reg.Encode(p)
	if err != nil {
		c.log.Error("encode failed", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.w.WriteFrame(payload); err != nil {
		c.log.Error("write failed", zap.Error(err))
		return
	}
	if err := c.w.Flush(); err != nil {
		c.log.Error("flush failed", zap.Error(err))
	}
}

func (c *client) keepAlive(every time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.send(protocol.Ping{})
		}
	}
}

func (c *client) receive(verbose bool) {
	r := framing.NewReader(c.conn, 0)
	for {
		frame, err := r.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				c.log.Info("❎ server closed the connection")
			} else {
				c.log.Error("read failed", zap.Error(err))
			}
			return
		}

		p, err := c.reg.Decode(frame)
		if err != nil {
			c.log.Warn("invalid packet", zap.Error(err))
			continue
		}

		switch p := p.(type) {
		case protocol.Kick:
			c.log.Warn("🚫 kicked", zap.String("reason", p.Reason))
		case protocol.Pong:
			if verbose {
				c.log.Debug("pong")
			}
		case protocol.PuckPosition:
			if verbose {
				c.log.Info("📥 puck",
					zap.Float32("x", p.PosX), zap.Float32("y", p.PosY),
					zap.Float32("mx", p.MotionX), zap.Float32("my", p.MotionY))
			}
		default:
			c.log.Info("📥 received", zap.String("kind", string(p.Kind())))
		}
	}
}
