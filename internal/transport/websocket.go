// =============================================================================
// 文件: internal/transport/websocket.go
// 描述: WebSocket 载体 - 用 WS 二进制消息承载同样的数据报
// =============================================================================
package transport

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mrcgq/233/internal/dedup"
	"github.com/mrcgq/233/internal/metrics"
)

const (
	wsReadTimeout  = 5 * time.Minute
	wsWriteTimeout = 30 * time.Second
)

// WSCarrier WebSocket 载体
// 每条 WS 连接对应一个远端端点; WS 消息保留边界, 可直接当数据报用
// 可靠层语义不变: 底层即使是 TCP, 会话层照常做序列号/确认簿记
type WSCarrier struct {
	addr    string
	path    string
	session *Session
	handler Handler
	guard   *dedup.Guard           // 可为 nil
	metrics *metrics.MirageMetrics // 可为 nil

	httpServer *http.Server
	upgrader   websocket.Upgrader
	peers      sync.Map // addr.String() -> *wsPeer

	stopCh      chan struct{}
	wg          sync.WaitGroup
	running     int32
	activeConns int64
}

// wsPeer 单个 WebSocket 对端
type wsPeer struct {
	conn *websocket.Conn
	addr *net.UDPAddr
	mu   sync.Mutex // 串行化写
}

func (p *wsPeer) write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return p.conn.WriteMessage(websocket.BinaryMessage, data)
}

// NewWSCarrier 创建 WebSocket 载体
func NewWSCarrier(listen, path string, session *Session, handler Handler, guard *dedup.Guard, m *metrics.MirageMetrics) *WSCarrier {
	return &WSCarrier{
		addr:    listen,
		path:    path,
		session: session,
		handler: handler,
		guard:   guard,
		metrics: m,
		stopCh:  make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  32 * 1024,
			WriteBufferSize: 32 * 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Start 启动 HTTP 服务并接受 WebSocket 升级
func (c *WSCarrier) Start() error {
	atomic.StoreInt32(&c.running, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(c.path, c.handleWebSocket)

	c.httpServer = &http.Server{
		Addr:    c.addr,
		Handler: mux,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[WS] HTTP 服务器错误: %v\n", err)
		}
	}()

	return nil
}

// Dial 主动连接远端 WebSocket 载体
// 建立后该对端与被动接入的对端走同一条收发路径
func (c *WSCarrier) Dial(url string) (*net.UDPAddr, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("WS 连接失败: %w", err)
	}

	addr, err := wsRemoteAddr(conn.RemoteAddr().String())
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.track(conn, addr)
	return addr, nil
}

// handleWebSocket 处理入站升级请求
// 端点地址就是连接的身份, 解析不出地址的连接直接拒绝,
// 不能让它顶着别人的身份共享序列号状态
func (c *WSCarrier) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	addr, err := wsRemoteAddr(r.RemoteAddr)
	if err != nil {
		fmt.Printf("[WS] 拒绝连接: %v\n", err)
		conn.Close()
		return
	}
	c.track(conn, addr)
}

// track 登记对端并启动其读协程
func (c *WSCarrier) track(conn *websocket.Conn, addr *net.UDPAddr) {
	peer := &wsPeer{conn: conn, addr: addr}
	c.peers.Store(addr.String(), peer)
	atomic.AddInt64(&c.activeConns, 1)

	c.wg.Add(1)
	go c.readPump(peer)
}

// readPump 单对端读循环
func (c *WSCarrier) readPump(peer *wsPeer) {
	defer c.wg.Done()
	defer func() {
		c.peers.Delete(peer.addr.String())
		peer.conn.Close()
		atomic.AddInt64(&c.activeConns, -1)
	}()

	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		peer.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		messageType, data, err := peer.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}

		deliverDatagram(c.session, c.guard, c.metrics, c.handler, data, peer.addr)
	}
}

// Send 发送一条应用层消息到对应端点的 WS 连接
func (c *WSCarrier) Send(msg Message) error {
	peer := c.lookup(msg.Addr)
	if peer == nil {
		return fmt.Errorf("WS 会话不存在: %s", msg.Addr.String())
	}

	buf, err := c.session.PrepareOutbound(msg)
	if err != nil {
		return err
	}
	return peer.write(buf)
}

// SendHeartbeat 向端点发送心跳
func (c *WSCarrier) SendHeartbeat(addr *net.UDPAddr) error {
	peer := c.lookup(addr)
	if peer == nil {
		return fmt.Errorf("WS 会话不存在: %s", addr.String())
	}

	buf, err := c.session.PrepareHeartbeat(addr)
	if err != nil {
		return err
	}
	return peer.write(buf)
}

func (c *WSCarrier) lookup(addr *net.UDPAddr) *wsPeer {
	if v, ok := c.peers.Load(addr.String()); ok {
		return v.(*wsPeer)
	}
	return nil
}

// GetActiveConns 当前 WS 连接数
func (c *WSCarrier) GetActiveConns() int64 {
	return atomic.LoadInt64(&c.activeConns)
}

// Close 关闭所有连接并停止 HTTP 服务, 重复调用是无操作
func (c *WSCarrier) Close() {
	if !atomic.CompareAndSwapInt32(&c.running, 1, 0) {
		return
	}
	close(c.stopCh)

	c.peers.Range(func(key, value interface{}) bool {
		peer := value.(*wsPeer)
		peer.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		peer.conn.Close()
		return true
	})

	if c.httpServer != nil {
		c.httpServer.Close()
	}
	c.wg.Wait()
}

// wsRemoteAddr 把 host:port 字符串转成端点标识用的 UDP 地址
func wsRemoteAddr(s string) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", s)
	if err != nil {
		return nil, fmt.Errorf("无法解析对端地址 %q: %w", s, err)
	}
	return addr, nil
}
