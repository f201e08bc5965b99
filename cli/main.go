// Package main provides a terminal client for the clinic assistant WebSocket server.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/xiaot623/clinic-assistant/internal/protocol"
)

// Client represents a WebSocket client.
type Client struct {
	conn   *websocket.Conn
	render *renderer

	writeMu sync.Mutex
	done    chan struct{}
}

// NewClient creates a new client and connects to the server.
func NewClient(addr string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	return &Client{
		conn:   conn,
		render: newRenderer(os.Stdout),
		done:   make(chan struct{}),
	}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

// SendHello opens or resumes a session.
func (c *Client) SendHello(apiKey, sessionID string) error {
	return c.send(protocol.HelloMessage{
		BaseMessage: protocol.NewBase(protocol.TypeHello, sessionID),
		APIKey:      apiKey,
	})
}

// SendLogin attaches a patient to the session.
func (c *Client) SendLogin(patientID string) error {
	return c.send(protocol.LoginMessage{
		BaseMessage: protocol.NewBase(protocol.TypeLogin, c.render.SessionID()),
		PatientID:   patientID,
	})
}

// SendText sends one line of user text.
func (c *Client) SendText(text string) error {
	return c.send(protocol.ChatMessage{
		BaseMessage: protocol.NewBase(protocol.TypeMessage, c.render.SessionID()),
		Text:        text,
	})
}

// SendChoice clicks an option.
func (c *Client) SendChoice(choiceID string) error {
	return c.send(protocol.ChoiceMessage{
		BaseMessage: protocol.NewBase(protocol.TypeChoice, c.render.SessionID()),
		ChoiceID:    choiceID,
	})
}

// SendLogout ends the conversation.
func (c *Client) SendLogout() error {
	return c.send(protocol.LogoutMessage{BaseMessage: protocol.NewBase(protocol.TypeLogout, c.render.SessionID())})
}

// SendActivity keeps the session from idling out.
func (c *Client) SendActivity() error {
	return c.send(protocol.ActivityMessage{
		BaseMessage: protocol.NewBase(protocol.TypeActivity, c.render.SessionID()),
		Kind:        "key",
	})
}

// ReadMessages reads and prints messages from the server until the
// connection closes.
func (c *Client) ReadMessages() {
	defer close(c.done)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Printf("Read error: %v", err)
			}
			return
		}
		if err := c.render.Handle(data); err != nil {
			log.Printf("Bad message: %v", err)
		}
	}
}

// handleLine sends one line typed by the user. It returns false on /quit.
func (c *Client) handleLine(input string) (bool, error) {
	switch {
	case input == "/quit":
		return false, nil
	case input == "/logout":
		return true, c.SendLogout()
	case !c.render.LoggedIn():
		return true, c.SendLogin(input)
	case strings.HasPrefix(input, "/"):
		n, err := strconv.Atoi(input[1:])
		if err != nil {
			return true, fmt.Errorf("unknown command %q", input)
		}
		id, ok := c.render.Option(n)
		if !ok {
			return true, fmt.Errorf("no option %d on screen", n)
		}
		return true, c.SendChoice(id)
	default:
		return true, c.SendText(input)
	}
}

func main() {
	addr := flag.String("addr", "ws://localhost:8090/ws", "WebSocket server address")
	apiKey := flag.String("api-key", "", "API key for authentication")
	sessionID := flag.String("session", "", "Session ID to resume")
	flag.Parse()

	log.SetFlags(log.Ltime)

	fmt.Printf("Connecting to %s...\n", *addr)

	client, err := NewClient(*addr)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer client.Close()

	go client.ReadMessages()

	if err := client.SendHello(*apiKey, *sessionID); err != nil {
		log.Fatalf("Hello failed: %v", err)
	}

	fmt.Println("Enter your 11-digit ID number to log in, then describe your symptoms.")
	fmt.Println("Commands: /N to pick option N, /logout, /quit")

	// Handle Ctrl+C
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-interrupt:
			fmt.Println("\nInterrupted")
			return
		case <-client.done:
			fmt.Println("Connection closed")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			input := strings.TrimSpace(line)
			if input == "" {
				continue
			}
			if err := client.SendActivity(); err != nil {
				log.Printf("Send error: %v", err)
				continue
			}

			more, err := client.handleLine(input)
			if err != nil {
				log.Printf("%v", err)
			}
			if !more {
				fmt.Println("Bye!")
				return
			}
		}
	}
}
