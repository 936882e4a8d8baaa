package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pior/memcached/protocol"
)

type client struct {
	addr    string
	timeout time.Duration
	conn    net.Conn
	r       *bufio.Reader
}

func main() {
	addr := flag.String("addr", "localhost:11211", "server address")
	timeout := flag.Duration("timeout", 2*time.Second, "dial and request timeout")
	flag.Parse()

	fmt.Println("Memcache CLI Tool")
	fmt.Println("================")
	fmt.Println("Commands: get <key>, raw <line>, ping, help, quit")
	fmt.Println()

	c := &client{addr: *addr, timeout: *timeout}
	defer c.close()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		switch command := strings.ToLower(parts[0]); command {
		case "get":
			if len(parts) != 2 {
				fmt.Println("Usage: get <key>")
				continue
			}
			c.do("get " + parts[1] + "\r\n")

		case "raw":
			if len(parts) < 2 {
				fmt.Println("Usage: raw <request line>")
				continue
			}
			c.do(strings.TrimSpace(line[len(parts[0]):]) + "\r\n")

		case "ping":
			c.do("get ping\r\n")

		case "help":
			fmt.Println("Commands:")
			fmt.Println("  get <key>    - Get a value by key")
			fmt.Println("  raw <line>   - Send a request line as is")
			fmt.Println("  ping         - Check the server answers")
			fmt.Println("  quit         - Exit the CLI")

		case "quit", "exit":
			fmt.Println("Goodbye!")
			return

		default:
			fmt.Printf("Unknown command: %s. Type 'help' for available commands.\n", command)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Printf("Error reading input: %v\n", err)
	}
}

// do sends request and prints the reply. The connection is dropped after
// any error that leaves it unusable and redialed by the next request.
func (c *client) do(request string) {
	start := time.Now()
	reply, err := c.roundTrip(request)
	duration := time.Since(start)

	if err != nil {
		if protocol.ShouldCloseConnection(err) {
			c.close()
		}
		fmt.Printf("Error: %v (took %v)\n", err, duration)
		return
	}

	if !reply.Hit() {
		fmt.Printf("Key not found (took %v)\n", duration)
		return
	}
	fmt.Printf("Value: %s (took %v)\n", string(reply.Data), duration)
	if reply.Flags != 0 {
		fmt.Printf("Flags: %d\n", reply.Flags)
	}
}

func (c *client) roundTrip(request string) (*protocol.Reply, error) {
	if c.conn == nil {
		conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
		if err != nil {
			return nil, &protocol.ConnectionError{Op: "dial", Err: err}
		}
		c.conn = conn
		c.r = bufio.NewReader(conn)
	}

	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, &protocol.ConnectionError{Op: "deadline", Err: err}
	}
	if _, err := c.conn.Write([]byte(request)); err != nil {
		return nil, &protocol.ConnectionError{Op: "write", Err: err}
	}
	return protocol.ReadReply(c.r)
}

func (c *client) close() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
		c.r = nil
	}
}
