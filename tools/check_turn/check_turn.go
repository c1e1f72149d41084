// Command check_turn probes a TURN relay's reachability: a TCP dial for
// the tcp transport, or a STUN binding request for udp (coturn answers
// STUN binding requests on the same port it relays on). Kept close to
// the teacher's tools/check_turn/check_turn.go.
package main

import (
	"fmt"
	"net"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("usage: check_turn <host:port> [udp|tcp]")
		os.Exit(1)
	}

	serverAddr := os.Args[1]
	proto := "udp"
	if len(os.Args) > 2 {
		proto = os.Args[2]
	}

	fmt.Printf("testing connectivity to %s via %s...\n", serverAddr, proto)

	if proto == "tcp" {
		conn, err := net.DialTimeout("tcp", serverAddr, 5*time.Second)
		if err != nil {
			fmt.Printf("tcp connection failed: %v\n", err)
			os.Exit(1)
		}
		defer conn.Close()
		fmt.Println("tcp connection succeeded, relay is listening")
		return
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

	req := []byte{
		0x00, 0x01,
		0x00, 0x00,
		0x21, 0x12, 0xA4, 0x42,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A, 0x0B, 0x0C,
	}

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

	if n >= 2 && buffer[0] == 0x01 && buffer[1] == 0x01 {
		fmt.Println("success: received STUN binding response")
	} else {
		fmt.Printf("received incomplete or unknown response: %x\n", buffer[:n])
		os.Exit(1)
	}
}
