package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

type progressMark struct {
	conversationID string
	inProgress     bool
}

// fakeProgress 记录进行中标记的写入
type fakeProgress struct {
	mu    sync.Mutex
	marks []progressMark
	err   error
}

func (f *fakeProgress) MarkProgress(_ context.Context, conversationID string, inProgress bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marks = append(f.marks, progressMark{conversationID, inProgress})
	return f.err
}

func (f *fakeProgress) all() []progressMark {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]progressMark(nil), f.marks...)
}

// testConn 构造一个不挂底层 WebSocket 的连接，事件直接落在 send 通道里
func testConn(buffer int) *Connection {
	return &Connection{
		send:   make(chan []byte, buffer),
		joined: make(map[string]struct{}),
	}
}

func recvEvent(t *testing.T, conn *Connection) Event {
	t.Helper()
	select {
	case data := <-conn.send:
		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("出站事件不是合法 JSON: %v", err)
		}
		return event
	default:
		t.Fatal("期望收到事件，但出站通道为空")
		return Event{}
	}
}

func TestJoinLeaveIdempotent(t *testing.T) {
	hub := NewHub(nil, nil)
	conn := testConn(1)

	hub.Join(conn, FormRoom("f1"))
	hub.Join(conn, FormRoom("f1"))
	if got := hub.RoomSize(FormRoom("f1")); got != 1 {
		t.Errorf("重复加入应幂等，房间成员数为 %d", got)
	}

	hub.Leave(conn, FormRoom("f1"))
	hub.Leave(conn, FormRoom("f1"))
	if got := hub.RoomSize(FormRoom("f1")); got != 0 {
		t.Errorf("离开后房间应为空，实际为 %d", got)
	}
}

func TestBroadcastFanout(t *testing.T) {
	progress := &fakeProgress{}
	hub := NewHub(progress, nil)
	ctx := context.Background()

	watchers := []*Connection{testConn(4), testConn(4), testConn(4)}
	for _, w := range watchers {
		hub.Join(w, FormRoom("f1"))
	}
	outsider := testConn(4)
	hub.Join(outsider, FormRoom("f2"))

	hub.NotifyConversationStarted(ctx, "org-1", "f1", "c1")

	// 房间内全部成员各收到一份，房间外一无所获
	for i, w := range watchers {
		event := recvEvent(t, w)
		if event.Type != EventConversationStarted {
			t.Errorf("成员 %d 期望 %s，实际为 %s", i, EventConversationStarted, event.Type)
		}
	}
	select {
	case <-outsider.send:
		t.Error("其它房间的成员不应收到事件")
	default:
	}

	marks := progress.all()
	if len(marks) != 1 || marks[0] != (progressMark{"c1", true}) {
		t.Errorf("会话开始应写入进行中标记，实际为 %+v", marks)
	}
}

func TestNotifyUpdatedReachesBothRooms(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx := context.Background()

	dashboard := testConn(4)
	respondent := testConn(4)
	hub.Join(dashboard, FormRoom("f1"))
	hub.Join(respondent, ConversationRoom("c1"))

	hub.NotifyConversationUpdated(ctx, "org-1", "f1", "c1", map[string]string{"id": "c1"})

	if event := recvEvent(t, dashboard); event.Type != EventConversationUpdated {
		t.Errorf("表单房间期望 %s，实际为 %s", EventConversationUpdated, event.Type)
	}
	if event := recvEvent(t, respondent); event.Type != EventConversationUpdated {
		t.Errorf("会话房间期望 %s，实际为 %s", EventConversationUpdated, event.Type)
	}
}

func TestDisconnectImpliesStopped(t *testing.T) {
	progress := &fakeProgress{}
	hub := NewHub(progress, nil)
	ctx := context.Background()

	dashboard := testConn(4)
	hub.Join(dashboard, FormRoom("f1"))

	respondent := testConn(4)
	respondent.hub = hub
	hub.Join(respondent, ConversationRoom("c1"))
	respondent.handleMessage(ctx, []byte(`{"type":"conversation:started","data":{"conversationId":"c1","formId":"f1"}}`))

	if event := recvEvent(t, dashboard); event.Type != EventConversationStarted {
		t.Errorf("表单房间期望 %s，实际为 %s", EventConversationStarted, event.Type)
	}

	// 作答页掉线：活跃会话被翻译为 stopped
	hub.disconnect(ctx, respondent)

	if event := recvEvent(t, dashboard); event.Type != EventConversationStopped {
		t.Errorf("断开后表单房间期望 %s，实际为 %s", EventConversationStopped, event.Type)
	}
	if got := hub.RoomSize(ConversationRoom("c1")); got != 0 {
		t.Errorf("断开后连接应退出全部房间，实际成员数 %d", got)
	}

	marks := progress.all()
	want := []progressMark{{"c1", true}, {"c1", false}}
	if len(marks) != 2 || marks[0] != want[0] || marks[1] != want[1] {
		t.Errorf("期望先写入进行中再清除，实际为 %+v", marks)
	}

	// 再次断开不应重复补发
	hub.disconnect(ctx, respondent)
	select {
	case <-dashboard.send:
		t.Error("重复断开不应再次广播 stopped")
	default:
	}
}

func TestEnqueueAfterCloseIsNoOp(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx := context.Background()

	leaving := testConn(4)
	stayer := testConn(4)
	hub.Join(leaving, FormRoom("f1"))
	hub.Join(stayer, FormRoom("f1"))

	// 广播方先拿到成员快照，随后连接才关闭：
	// 向将死连接的投递必须是空操作，而不是向已关闭通道发送。
	hub.disconnect(ctx, leaving)
	leaving.close()
	leaving.enqueue([]byte(`{"type":"conversation:updated"}`))

	if _, ok := <-leaving.send; ok {
		t.Error("关闭后的连接不应再收到任何帧")
	}

	// 幂等关闭与后续广播都不应 panic
	leaving.close()
	hub.Broadcast(ctx, FormRoom("f1"), Event{Type: EventConversationUpdated})
	if event := recvEvent(t, stayer); event.Type != EventConversationUpdated {
		t.Errorf("存活连接应照常收到事件，实际为 %s", event.Type)
	}
}

func TestStoppedBroadcastSurvivesProgressStoreError(t *testing.T) {
	progress := &fakeProgress{err: errors.New("store unavailable")}
	hub := NewHub(progress, nil)
	ctx := context.Background()

	dashboard := testConn(4)
	hub.Join(dashboard, FormRoom("f1"))

	hub.NotifyConversationStopped(ctx, "org-1", "f1", "c1")

	// 持久化失败只记日志，扇出照常进行
	if event := recvEvent(t, dashboard); event.Type != EventConversationStopped {
		t.Errorf("期望 %s，实际为 %s", EventConversationStopped, event.Type)
	}
	if marks := progress.all(); len(marks) != 1 || marks[0] != (progressMark{"c1", false}) {
		t.Errorf("进行中标记写入应被尝试过，实际为 %+v", marks)
	}
}

func TestSlowConsumerDropsFrames(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx := context.Background()

	slow := testConn(1)
	hub.Join(slow, FormRoom("f1"))

	hub.NotifyConversationStarted(ctx, "org-1", "f1", "c1")
	hub.NotifyConversationStarted(ctx, "org-1", "f1", "c2")

	// 缓冲只有一条，第二帧被丢弃而不是阻塞广播方
	if got := len(slow.send); got != 1 {
		t.Errorf("期望出站缓冲里只剩 1 帧，实际为 %d", got)
	}
}

func TestHandleMessageMalformedIgnored(t *testing.T) {
	hub := NewHub(nil, nil)
	conn := testConn(1)
	conn.hub = hub
	ctx := context.Background()

	// 非法 JSON、未知类型、缺失 id 都静默忽略
	conn.handleMessage(ctx, []byte("not-json"))
	conn.handleMessage(ctx, []byte(`{"type":"unknown","data":{}}`))
	conn.handleMessage(ctx, []byte(`{"type":"join-room-form","data":{"formId":""}}`))
	conn.handleMessage(ctx, []byte(`{"type":"conversation:started","data":{"conversationId":"c1"}}`))

	if len(conn.joined) != 0 {
		t.Errorf("非法消息不应产生任何房间变更: %v", conn.joined)
	}
	if conn.activeConversationID != "" {
		t.Errorf("缺失 formId 的 started 不应登记活跃会话: %q", conn.activeConversationID)
	}

	// 合法的订阅消息进入对应房间
	conn.handleMessage(ctx, []byte(`{"type":"join-room-form","data":{"formId":"f1"}}`))
	conn.handleMessage(ctx, []byte(`{"type":"join-room-conversation","data":{"conversationId":"c1"}}`))
	if hub.RoomSize(FormRoom("f1")) != 1 || hub.RoomSize(ConversationRoom("c1")) != 1 {
		t.Error("订阅消息应把连接加入对应房间")
	}
}

func TestConversationUpdatedAutoJoinsRooms(t *testing.T) {
	hub := NewHub(nil, nil)
	ctx := context.Background()

	respondent := testConn(4)
	respondent.hub = hub

	// 未显式订阅任何房间，updated 会先补齐两个房间再广播
	respondent.handleMessage(ctx, []byte(`{"type":"conversation:updated","data":{"conversationId":"c1","formId":"f1"}}`))

	if hub.RoomSize(FormRoom("f1")) != 1 || hub.RoomSize(ConversationRoom("c1")) != 1 {
		t.Error("conversation:updated 应把连接补进两个房间")
	}
	if event := recvEvent(t, respondent); event.Type != EventConversationUpdated {
		t.Errorf("期望 %s，实际为 %s", EventConversationUpdated, event.Type)
	}
	// 两个房间各发一次，同一连接会收到两帧
	if event := recvEvent(t, respondent); event.Type != EventConversationUpdated {
		t.Errorf("期望 %s，实际为 %s", EventConversationUpdated, event.Type)
	}
}

func TestClientStoppedClearsActivePair(t *testing.T) {
	progress := &fakeProgress{}
	hub := NewHub(progress, nil)
	ctx := context.Background()

	respondent := testConn(4)
	respondent.hub = hub
	respondent.handleMessage(ctx, []byte(`{"type":"conversation:started","data":{"conversationId":"c1","formId":"f1"}}`))
	respondent.handleMessage(ctx, []byte(`{"type":"conversation:stopped","data":{"conversationId":"c1","formId":"f1"}}`))

	if respondent.activeConversationID != "" || respondent.activeFormID != "" {
		t.Error("显式 stopped 后活跃会话应被清空")
	}

	// 随后的断开不再补发 stopped
	hub.disconnect(ctx, respondent)
	marks := progress.all()
	if len(marks) != 2 {
		t.Errorf("期望仅 started/stopped 两次写入，实际为 %+v", marks)
	}
}
