// chatctl is a minimal terminal client for the chat server, handy for
// poking at a running instance: it connects as one identity, prints
// every event it receives and sends each stdin line as a message to the
// chosen peer.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/gorilla/websocket"

	"chatterbox/pkg/protocol"
)

func main() {
	server := flag.String("server", "ws://localhost:8000/ws", "websocket endpoint")
	email := flag.String("email", "", "identity to connect as")
	username := flag.String("username", "", "display name (defaults to email)")
	to := flag.String("to", "", "peer email or group id to send messages to")
	isGroup := flag.Bool("group", false, "treat -to as a group id")
	flag.Parse()

	if *email == "" || *to == "" {
		fmt.Fprintln(os.Stderr, "usage: chatctl -email you@example.com -to peer@example.com [-group]")
		os.Exit(2)
	}
	if *username == "" {
		*username = *email
	}

	conn, _, err := websocket.DefaultDialer.Dial(*server, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial %s: %v\n", *server, err)
		os.Exit(1)
	}
	defer conn.Close()

	if err := send(conn, protocol.EventConnect, protocol.ConnectPayload{
		Username: *username,
		Email:    *email,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}

	go receive(conn)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		err := send(conn, protocol.EventSendMessage, protocol.SendMessagePayload{
			Receiver: *to,
			Body:     line,
			IsGroup:  *isGroup,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "send: %v\n", err)
			return
		}
	}
}

func send(conn *websocket.Conn, typ protocol.EventType, payload interface{}) error {
	ev, err := protocol.NewEvent(typ, payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(ev)
}

// receive prints every inbound event until the connection drops
func receive(conn *websocket.Conn) {
	for {
		var ev protocol.Event
		if err := conn.ReadJSON(&ev); err != nil {
			fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
			os.Exit(1)
		}

		switch ev.Type {
		case protocol.EventMessageReceived:
			var m protocol.Message
			if json.Unmarshal(ev.Payload, &m) == nil {
				fmt.Printf("[%s] %s: %s (%s)\n", m.Timestamp.Format("15:04:05"), m.Sender, m.Body, m.Status)
			}
		case protocol.EventStatusChanged:
			var sc protocol.StatusChangedPayload
			if json.Unmarshal(ev.Payload, &sc) == nil {
				fmt.Printf("* message %s is now %s\n", sc.MessageID, sc.Status)
			}
		case protocol.EventTypingChanged:
			var tc protocol.TypingChangedPayload
			if json.Unmarshal(ev.Payload, &tc) == nil {
				if tc.Active {
					fmt.Printf("* %s is typing...\n", tc.Sender)
				} else {
					fmt.Printf("* %s stopped typing\n", tc.Sender)
				}
			}
		default:
			fmt.Printf("* %s: %s\n", ev.Type, ev.Payload)
		}
	}
}
