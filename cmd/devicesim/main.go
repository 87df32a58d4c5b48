// devicesim simulates a voice terminal against a running server: it
// authenticates, performs the hello handshake, streams one synthetic
// utterance and prints everything the server sends back.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wicaksana/gema/domain/entities"
	"github.com/wicaksana/gema/internal/protocol"
)

var (
	serverAddr = flag.String("server", "localhost:8554", "server host:port")
	wsPath     = flag.String("ws-path", "/gema", "WebSocket path")
	serial     = flag.String("serial", "GEMA001", "device serial number")
	secret     = flag.String("secret", "secret123", "device secret key")
	clientID   = flag.String("client", "devicesim", "client instance id")
	frames     = flag.Int("frames", 20, "synthetic audio frames to send")
	speakWait  = flag.Duration("wait", 15*time.Second, "how long to wait for the reply")
)

type authRequest struct {
	SerialNumber string `json:"serial_number"`
	SecretKey    string `json:"secret_key"`
}

type authResponse struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id"`
}

func main() {
	flag.Parse()

	token, deviceID, err := authenticate()
	if err != nil {
		log.Fatalf("authenticate: %v", err)
	}
	log.Printf("authenticated as device %s", deviceID)

	u := url.URL{Scheme: "ws", Host: *serverAddr, Path: *wsPath}
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), headers)
	if err != nil {
		log.Fatalf("dial %s: %v", u.String(), err)
	}
	defer conn.Close()

	if err := sendJSON(conn, protocol.Hello{
		Type:     protocol.TypeHello,
		Version:  entities.ProtocolVersion,
		DeviceID: deviceID,
		ClientID: *clientID,
	}); err != nil {
		log.Fatalf("send hello: %v", err)
	}

	format, err := awaitAck(conn)
	if err != nil {
		log.Fatalf("handshake: %v", err)
	}
	log.Printf("session established, %d Hz / %d bit / %d ms frames",
		format.SampleRate, format.BitDepth, format.FrameDurationMs)

	if err := sendJSON(conn, stamped(protocol.TypeWakewordDetected)); err != nil {
		log.Fatalf("send wakeword: %v", err)
	}
	if err := sendJSON(conn, stamped(protocol.TypeStartListen)); err != nil {
		log.Fatalf("send start_listen: %v", err)
	}

	frameBytes := format.SampleRate * format.BitDepth / 8 * format.Channels * format.FrameDurationMs / 1000
	for i := 0; i < *frames; i++ {
		frame := make([]byte, frameBytes)
		for j := range frame {
			frame[j] = byte((i*31 + j) % 256)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			log.Fatalf("send frame %d: %v", i, err)
		}
		time.Sleep(time.Duration(format.FrameDurationMs) * time.Millisecond)
	}
	if err := sendJSON(conn, stamped(protocol.TypeStopListen)); err != nil {
		log.Fatalf("send stop_listen: %v", err)
	}
	log.Printf("sent %d frames, waiting for reply", *frames)

	listen(conn)
}

// listen prints server traffic until the exchange completes or the wait
// budget runs out. Server pings are answered to keep the session alive.
func listen(conn *websocket.Conn) {
	deadline := time.Now().Add(*speakWait)
	conn.SetReadDeadline(deadline)

	var replyBytes int
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			log.Printf("connection closed: %v", err)
			return
		}

		if messageType == websocket.BinaryMessage {
			replyBytes += len(data)
			continue
		}

		msg, err := protocol.Parse(data)
		if err != nil {
			log.Printf("unparseable frame: %v", err)
			return
		}
		switch msg := msg.(type) {
		case protocol.RecognitionResult:
			log.Printf("recognized: %q", msg.Text)
		case protocol.Marker:
			if msg.Type == protocol.TypeTTSEnd {
				log.Printf("reply finished, %d audio bytes", replyBytes)
				return
			}
			log.Printf("reply audio starting")
		case protocol.ErrorMessage:
			log.Printf("server error %s: %s", msg.Code, msg.Message)
			return
		case protocol.Timestamped:
			if msg.Type == protocol.TypePing {
				sendJSON(conn, stamped(protocol.TypePong))
			}
		}
	}
}

func authenticate() (token, deviceID string, err error) {
	body, err := json.Marshal(authRequest{SerialNumber: *serial, SecretKey: *secret})
	if err != nil {
		return "", "", err
	}

	endpoint := fmt.Sprintf("http://%s/api/v1/device/auth", *serverAddr)
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("authentication failed: %s", string(payload))
	}

	var auth authResponse
	if err := json.Unmarshal(payload, &auth); err != nil {
		return "", "", err
	}
	return auth.Token, auth.DeviceID, nil
}

func awaitAck(conn *websocket.Conn) (entities.AudioFormat, error) {
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return entities.AudioFormat{}, err
	}
	msg, err := protocol.Parse(data)
	if err != nil {
		return entities.AudioFormat{}, err
	}
	ack, ok := msg.(protocol.HelloAck)
	if !ok {
		return entities.AudioFormat{}, fmt.Errorf("expected hello_ack, got %T", msg)
	}
	return ack.AudioParams, nil
}

func sendJSON(conn *websocket.Conn, msg any) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func stamped(t protocol.Type) protocol.Timestamped {
	return protocol.Timestamped{Type: t, Timestamp: time.Now().UnixMilli()}
}
