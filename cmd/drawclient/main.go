// Command drawclient joins a relay from the terminal. It logs the strokes and
// user lists it receives and can send a demo stroke after logging in.
package main

import (
	"context"
	"flag"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mmuslimabdulj/sketchrelay/internal/domain"
	"github.com/mmuslimabdulj/sketchrelay/internal/endpoint"
	"github.com/mmuslimabdulj/sketchrelay/internal/logger"
)

// logSurface prints strokes instead of rendering them
type logSurface struct {
	log *logger.Logger
}

func (s logSurface) DrawLine(points []domain.Point, color string) {
	if len(points) == 0 {
		return
	}
	first, last := points[0], points[len(points)-1]
	s.log.Infof("Stroke %s: %d points from (%.0f,%.0f) to (%.0f,%.0f)",
		color, len(points), first[0], first[1], last[0], last[1])
}

func (s logSurface) Clear() {
	s.log.Info("Canvas cleared")
}

type logRoster struct {
	log *logger.Logger
}

func (r logRoster) ReplaceUsers(users map[string]string) {
	names := make([]string, 0, len(users))
	for _, name := range users {
		names = append(names, name)
	}
	sort.Strings(names)
	r.log.Infof("Drawing now (%d): %s", len(names), strings.Join(names, ", "))
}

func main() {
	_ = godotenv.Load()

	url := flag.String("url", "ws://localhost:8080/ws", "relay websocket URL")
	name := flag.String("name", "", "username to log in with")
	color := flag.String("color", "#1e90ff", "stroke color")
	demo := flag.Bool("demo", false, "draw a circle after logging in")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	cfg := logger.DefaultLogConfig()
	cfg.Level = *level
	logger.InitLogger(cfg)
	log := logger.NewLogger("drawclient")

	if *name == "" {
		log.Fatal("-name is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	e, err := endpoint.Dial(ctx, *url, endpoint.Options{
		Surface: logSurface{log: log},
		Roster:  logRoster{log: log},
		Logger:  log,
	})
	cancel()
	if err != nil {
		log.Fatalf("Connect: %v", err)
	}
	defer e.Close()

	res, err := login(e, *name)
	if err != nil {
		log.Fatalf("Login: %v", err)
	}
	if !res.OK && res.Suggestion != "" {
		log.Warnf("%v, trying %q", res.Err, res.Suggestion)
		res, err = login(e, res.Suggestion)
		if err != nil {
			log.Fatalf("Login: %v", err)
		}
	}
	if !res.OK {
		log.Fatalf("Login rejected: %v", res.Err)
	}
	log.Infof("Logged in as %q", res.Username)

	if *demo {
		if err := e.EmitDrawPoints(circle(200, 200, 80, 48), *color); err != nil {
			log.Errorf("Draw: %v", err)
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-e.Done():
		log.Warnf("Relay closed the connection: %v", e.Err())
	}
}

func login(e *endpoint.Endpoint, name string) (endpoint.LoginResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.RequestLogin(ctx, name)
}

func circle(cx, cy, r float64, n int) []domain.Point {
	points := make([]domain.Point, 0, n+1)
	for i := 0; i <= n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		points = append(points, domain.Point{cx + r*math.Cos(a), cy + r*math.Sin(a)})
	}
	return points
}
