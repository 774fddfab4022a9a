package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiwari-pos/client/internal/api"
	"github.com/kiwari-pos/client/internal/auth"
	"github.com/kiwari-pos/client/internal/cart"
	"github.com/kiwari-pos/client/internal/config"
	"github.com/kiwari-pos/client/internal/notify"
	"github.com/kiwari-pos/client/internal/orderedit"
	"github.com/kiwari-pos/client/internal/realtime"
	"github.com/kiwari-pos/client/internal/storage"
	"github.com/kiwari-pos/client/internal/ui"
	"golang.org/x/sync/errgroup"
)

const statsInterval = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.ConfigPath != "" {
		log.Printf("Loaded config from %s", cfg.ConfigPath)
	}

	kv, err := storage.NewFile(cfg.StorageDir)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	notices := notify.NewCenter(cfg.NoticeTTL, 0)
	notices.OnShow(notify.LogNotice)

	staff, customer := false, false
	if claims, err := auth.Inspect(cfg.Realtime.Token); err == nil {
		staff = claims.IsStaff()
		customer = claims.IsCustomer()
	}

	basket := cart.Open(kv, cfg.Cart, cart.WithNotifier(notices))
	log.Printf("Cart: %d items, %s", basket.ItemCount(), basket.DisplayTotal())
	if customer {
		if snap, err := basket.Checkout(); err == nil {
			log.Printf("Cart ready for checkout: %d items, %s", snap.Count, basket.DisplayTotal())
		}
	}

	board := ui.NewBoard()
	rtOpts := []realtime.Option{realtime.WithView(board), realtime.WithNotices(notices)}
	if staff {
		rtOpts = append(rtOpts, realtime.WithPaymentTracking())
	}
	rt := realtime.New(cfg.Realtime, rtOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	client := api.New(cfg.ServerURL, cfg.CSRFToken, nil)
	editor := orderedit.NewController(client, nil, notices)

	rt.OnConnectionChange(func(ch realtime.ConnectionChange) {
		log.Printf("Real-time connection: %s", ch.State)
		if staff && ch.State == realtime.StateConnected {
			rt.RequestStats()
		}
	})
	rt.OnNewOrder(func(o realtime.NewOrder) {
		rt.JoinOrderRoom(o.OrderID)
		if !staff {
			return
		}
		go func() {
			buf, err := editor.Load(ctx, o.OrderID)
			if err != nil {
				return
			}
			log.Printf("Order #%d: %d items, %s", buf.OrderID, len(buf.Rows), buf.DisplayTotal())
		}()
	})

	g.Go(func() error {
		if client.CSRFToken() != "" {
			return nil
		}
		if _, err := client.LoadCSRFToken(ctx, cfg.CSRFPage); err != nil {
			log.Printf("csrf: %v", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := rt.Connect(ctx); err != nil {
			log.Printf("realtime: %v", err)
		}
		<-ctx.Done()
		rt.Disconnect()
		return nil
	})

	if staff {
		g.Go(func() error {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					rt.RequestStats()
				}
			}
		})
	}

	log.Printf("Terminal started (server %s)", cfg.ServerURL)
	if err := g.Wait(); err != nil {
		log.Fatalf("terminal: %v", err)
	}
	log.Printf("Terminal stopped")
}
