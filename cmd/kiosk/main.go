package main // check-in kiosk: owns the camera and serves the visitor UI's API

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/cbtwine/attendance/internal/apiclient"
	"github.com/cbtwine/attendance/internal/checkin"
	"github.com/cbtwine/attendance/internal/config"
	"github.com/cbtwine/attendance/internal/kiosk"
	"github.com/cbtwine/attendance/internal/scanner"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("env: %v", err)
	}
	cfg := config.LoadKiosk()
	logger := log.New(os.Stderr, "", log.LstdFlags)

	api, err := apiclient.NewClient(apiclient.Config{BaseURL: cfg.APIURL, Timeout: cfg.HTTPTimeout})
	if err != nil {
		log.Fatalf("api: %v", err)
	}
	// A failed first login is not fatal: the UI lands on the login page
	// as soon as the catalog request is rejected.
	loginCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPTimeout)
	if err := api.Authenticate(loginCtx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Printf("kiosk: initial login failed: %v", err)
	}
	cancel()

	camera := scanner.DirCamera{Root: cfg.CameraRoot}
	decoder := scanner.NewQRDecoder()
	newScanner := func(ctx context.Context) (checkin.Scanner, error) {
		s, err := scanner.Start(ctx, camera, decoder, scanner.Options{
			ScanPeriod:      cfg.ScanPeriod,
			PreferredDevice: cfg.CameraHint,
			Logger:          logger,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	svc, err := kiosk.NewService(kiosk.Deps{
		Scanner: newScanner,
		API:     api,
		Auth:    api,
		Creds:   kiosk.Credentials{Email: cfg.AdminEmail, Password: cfg.AdminPassword},
		Logger:  logger,
		Grace:   cfg.SessionGrace,
	})
	if err != nil {
		log.Fatalf("kiosk: %v", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())
	kiosk.NewHandler(svc).Register(e)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.Port
	go func() {
		log.Printf("kiosk listening on %s, api %s", addr, cfg.APIURL)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	svc.Shutdown()
	shutdown, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdown); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
