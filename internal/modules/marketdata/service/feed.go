package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"scan_bot/internal/models"
	"scan_bot/internal/modules/config"
	"scan_bot/pkg/logger"
)

// Feed — WS-клиент котировок: держит соединение с реконнектом и кеш
// последних bid/ask. GetQuotes отдаёт кеш, честно помечая устаревшее.
type Feed struct {
	cfg      *config.Config
	wsDialer *websocket.Dialer

	mu    sync.RWMutex
	cache map[string]models.Quote
}

func NewFeed(cfg *config.Config) *Feed {
	return &Feed{
		cfg:      cfg,
		wsDialer: &websocket.Dialer{HandshakeTimeout: cfg.Feed.DialTimeout},
		cache:    make(map[string]models.Quote),
	}
}

// tickerMsg — формат сообщения фида.
type tickerMsg struct {
	InstID string  `json:"instId"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	TsMs   int64   `json:"ts"`
}

type subscribeMsg struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

// Start крутит реконнект-цикл, пока жив ctx.
func (f *Feed) Start(ctx context.Context, instIDs []string) {
	if f.cfg.Feed.URL == "" {
		logger.Info("[FEED] no url configured, live feed off")
		return
	}

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := f.runConn(ctx, instIDs); err != nil {
			logger.Error("[FEED] connection lost: %v, retry in %s", err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *Feed) runConn(ctx context.Context, instIDs []string) error {
	conn, _, err := f.wsDialer.DialContext(ctx, f.cfg.Feed.URL, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", f.cfg.Feed.URL, err)
	}
	defer func() {
		_ = conn.Close()
	}()

	sub, err := sonic.Marshal(subscribeMsg{Op: "subscribe", Args: instIDs})
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	logger.Info("[FEED] connected, %d instruments", len(instIDs))

	// пинги, чтобы прокси не рвали тихое соединение
	go func() {
		t := time.NewTicker(f.cfg.Feed.PingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		var msg tickerMsg
		if err := sonic.Unmarshal(raw, &msg); err != nil || msg.InstID == "" {
			continue // служебные сообщения фида пропускаем
		}

		f.mu.Lock()
		f.cache[msg.InstID] = models.Quote{
			InstID: msg.InstID,
			Bid:    msg.Bid,
			Ask:    msg.Ask,
			Ts:     time.UnixMilli(msg.TsMs),
		}
		f.mu.Unlock()
	}
}

// GetQuotes — снапшот кеша по запрошенным инструментам. Ошибка, только
// если нет вообще ничего; отдельные дыры приходят как Stale-котировки.
func (f *Feed) GetQuotes(_ context.Context, instIDs []string) (map[string]models.Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	now := time.Now()
	out := make(map[string]models.Quote, len(instIDs))
	seen := 0
	for _, id := range instIDs {
		q, ok := f.cache[id]
		if !ok {
			out[id] = models.Quote{InstID: id, Stale: true}
			continue
		}
		seen++
		if now.Sub(q.Ts) > f.cfg.Feed.StaleAfter {
			q.Stale = true
		}
		out[id] = q
	}
	if seen == 0 {
		return out, fmt.Errorf("no quotes cached for %d instruments", len(instIDs))
	}
	return out, nil
}
