package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	"github.com/Comcast/wapgate/appl"
	"github.com/Comcast/wapgate/tools"
	"github.com/Comcast/wapgate/wml"
	"github.com/Comcast/wapgate/wmlscript"

	"github.com/gorhill/cronexpr"
	_ "github.com/mattn/go-sqlite3"
)

func main() {

	var (
		confFile = flag.String("c", "", "configuration filename")

		httpPort  = flag.String("h", "", "HTTP port for the status page and WebSockets")
		wsService = flag.Bool("w", true, "WebSockets service")

		listenOnStdin = flag.Bool("I", false, "listen for events on stdin")
		emitToStdout  = flag.Bool("O", false, "emit events to stdout")

		broker    = flag.String("b", "", "MQTT broker, e.g. tcp://localhost")
		port      = flag.Int("p", 1883, "MQTT broker port")
		clientId  = flag.String("i", "wapgate", "MQTT client id")
		userName  = flag.String("u", "", "MQTT username")
		password  = flag.String("P", "", "MQTT password")
		keepAlive = flag.Int("k", 10, "MQTT keep-alive in seconds")
		reconnect = flag.Bool("reconnect", false, "MQTT automatic reconnection")
		subTopic  = flag.String("t", "wap/in", "MQTT topic for inbound events")
		pubTopic  = flag.String("T", "wap/out", "MQTT topic for emitted events")
		quiesce   = flag.Int("quiesce", 100, "MQTT disconnection quiescence (in milliseconds)")

		verbose = flag.Bool("v", false, "log lots of wonderful things")
	)

	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	conf, err := ReadConf(*confFile)
	if err != nil {
		log.Fatal(err)
	}

	if conf.WMLScript {
		if err := wmlscript.SelfCheck(); err != nil {
			log.Fatal(err)
		}
	}

	s, err := NewService(conf)
	if err != nil {
		log.Fatal(err)
	}
	s.Verbose = *verbose

	if s.store, err = conf.DLRStorage(ctx); err != nil {
		log.Fatal(err)
	}
	if s.store != nil {
		defer s.store.Close() // ToDo: Check error.
	}

	app, err := appl.New(conf.ApplConfig(*verbose), appl.Deps{
		Sessions:    s,
		PushGateway: s,
		Converters:  s.convs,
		URLMap:      s.urls,
		Charsets:    wml.Charsets(),
	})
	if err != nil {
		log.Fatal(err)
	}
	s.app = app

	if err := app.Start(ctx); err != nil {
		log.Fatal(err)
	}

	go s.EmitLoop(ctx)

	if *emitToStdout {
		s.AddEmitter(func(js []byte) {
			fmt.Println(string(js))
		})
	}

	if *listenOnStdin {
		go func() {
			if err := s.Listener(ctx, os.Stdin); err != nil {
				log.Printf("Service.Listener os.Stdin error %s", err)
			}
			cancel()
		}()
	}

	var mq *MQTTCoupling
	if *broker != "" {
		mq = &MQTTCoupling{
			Broker:    *broker,
			Port:      *port,
			ClientID:  *clientId,
			Username:  *userName,
			Password:  *password,
			KeepAlive: *keepAlive,
			Reconnect: *reconnect,
			SubTopic:  *subTopic,
			PubTopic:  *pubTopic,
		}
		if err := mq.Start(ctx, s); err != nil {
			log.Fatal(err)
		}
	}

	if conf.DLRReportCron != "" && s.store != nil {
		expr, err := cronexpr.Parse(conf.DLRReportCron)
		if err != nil {
			log.Fatal(err)
		}
		go s.dlrReportLoop(ctx, expr)
	}

	if *httpPort != "" {
		go func() {
			if *wsService {
				log.Printf("WebSockets service starting")
				if err := s.WebSocketService(ctx); err != nil {
					log.Fatal(err)
				}
			}
			log.Printf("HTTP service on %s", *httpPort)
			if err := s.HTTPServer(ctx, *httpPort); err != nil {
				log.Fatal(err)
			}
		}()
	}

	<-ctx.Done()

	if mq != nil {
		mq.Stop(uint(*quiesce))
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("shutdown error %s", err)
	}
}

// dlrReportLoop logs the pending delivery report count on the
// configured schedule.
func (s *Service) dlrReportLoop(ctx context.Context, expr *cronexpr.Expression) {
	for {
		next := expr.Next(time.Now())
		if next.IsZero() {
			return
		}
		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			n, err := s.store.Messages(ctx)
			if err != nil {
				log.Printf("ERROR service: dlr count: %v", err)
				continue
			}
			log.Printf("service: %d delivery reports pending", n)
		}
	}
}

// HTTPServer serves the status page and a goroutine dump.
func (s *Service) HTTPServer(ctx context.Context, port string) error {
	http.Handle("/goroutines", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pprof.Lookup("goroutine").WriteTo(w, 1)
	}))

	http.Handle("/status", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := tools.RenderStatusPage(s.Status(r.Context()), w, nil); err != nil {
			log.Printf("Service.HTTPServer warning on RenderStatusPage: %v", err)
		}
	}))

	return http.ListenAndServe(port, nil)
}
