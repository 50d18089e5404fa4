package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func sampleNotification() Notification {
	return Notification{
		RunID:      "run-1",
		StartedAt:  time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC),
		Duration:   42 * time.Second,
		Succeeded:  10,
		Partial:    1,
		Failed:     2,
		FailedIDs:  []string{"GAZP", "YNDX"},
		PartialIDs: []string{"SBER"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "sendMessage") {
			t.Errorf("路径应包含 sendMessage, 实际 %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("解析请求体失败: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err != nil {
		t.Fatalf("Telegram Notify 应成功: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("chat_id 不正确: %#v", received)
	}
	text := received["text"]
	for _, want := range []string{"run-1", "failed: 2", "GAZP,YNDX", "Partial: SBER"} {
		if !strings.Contains(text, want) {
			t.Fatalf("消息缺少 %q: %s", want, text)
		}
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("ok=false 应报错")
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), sampleNotification()); err == nil {
		t.Fatal("非 2xx 响应应报错")
	}
}

func TestShouldNotify(t *testing.T) {
	cases := []struct {
		name      string
		note      Notification
		onPartial bool
		want      bool
	}{
		{"clean", Notification{Succeeded: 3}, true, false},
		{"failed", Notification{Failed: 1}, false, true},
		{"partial_off", Notification{Partial: 1}, false, false},
		{"partial_on", Notification{Partial: 1}, true, true},
		{"interrupted", Notification{Interrupted: true}, false, true},
	}
	for _, tc := range cases {
		if got := ShouldNotify(tc.note, tc.onPartial); got != tc.want {
			t.Fatalf("%s: ShouldNotify=%v, 期望 %v", tc.name, got, tc.want)
		}
	}
}

func TestListTickersTruncates(t *testing.T) {
	ids := make([]string, maxListed+5)
	for i := range ids {
		ids[i] = fmt.Sprintf("T%d", i)
	}
	if got := listTickers(ids); !strings.HasSuffix(got, "(+5 more)") {
		t.Fatalf("列表未截断: %s", got)
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
