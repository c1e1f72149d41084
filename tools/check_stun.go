// Command check_stun is a one-shot diagnostic: it sends a single STUN
// Binding Request to a server and reports whether it got a success
// response, useful for confirming a StunServer value from
// ~/.qdrop/config.json is actually reachable before wiring it into a
// transfer. Kept close to the teacher's tools/check_stun.go.
package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"
)

// defaultStunServer matches internal/transport.DefaultICEConfig, used
// when no server is given on the command line.
const defaultStunServer = "stun.l.google.com:19302"

func main() {
	serverAddr := defaultStunServer
	if len(os.Args) >= 2 {
		serverAddr = strings.TrimPrefix(os.Args[1], "stun:")
	}

	udpAddr, err := net.ResolveUDPAddr("udp", serverAddr)
	if err != nil {
		fmt.Printf("error resolving address: %v\n", err)
		os.Exit(1)
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		fmt.Printf("error listening: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// A minimal STUN Binding Request: type 0x0001, length 0, the fixed
	// magic cookie, and a 12-byte transaction ID (doesn't need to be
	// random for a one-shot diagnostic).
	req := []byte{
		0x00, 0x01,
		0x00, 0x00,
		0x21, 0x12, 0xA4, 0x42,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C,
	}

	fmt.Printf("sending STUN binding request to %s...\n", serverAddr)
	if _, err := conn.WriteToUDP(req, udpAddr); err != nil {
		fmt.Printf("error sending: %v\n", err)
		os.Exit(1)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buffer := make([]byte, 1024)
	n, _, err := conn.ReadFromUDP(buffer)
	if err != nil {
		fmt.Printf("error reading (timeout?): %v\n", err)
		os.Exit(1)
	}

	// 0x0101 is a Binding Success Response.
	if n >= 2 && buffer[0] == 0x01 && buffer[1] == 0x01 {
		fmt.Println("success: received STUN binding response")
	} else {
		fmt.Printf("received incomplete or non-success response: %x\n", buffer[:n])
		os.Exit(1)
	}
}
