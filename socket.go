// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build unix

package weatherd

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// resolveSockaddr resolves a "host:port" TCP address. An empty host binds
// all IPv4 interfaces.
func resolveSockaddr(addr string) (unix.Sockaddr, int, error) {
	tcpAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, 0, err
	}
	if tcpAddr.IP == nil || tcpAddr.IP.To4() != nil {
		sa := &unix.SockaddrInet4{Port: tcpAddr.Port}
		if ip4 := tcpAddr.IP.To4(); ip4 != nil {
			copy(sa.Addr[:], ip4)
		}
		return sa, unix.AF_INET, nil
	}
	sa := &unix.SockaddrInet6{Port: tcpAddr.Port}
	copy(sa.Addr[:], tcpAddr.IP.To16())
	if tcpAddr.Zone != "" {
		if ifi, err := net.InterfaceByName(tcpAddr.Zone); err == nil {
			sa.ZoneId = uint32(ifi.Index)
		}
	}
	return sa, unix.AF_INET6, nil
}

// listenSocket creates a non-blocking, bound and listening TCP socket.
func listenSocket(sa unix.Sockaddr, domain, backlog int) (fd int, err error) {
	fd, err = unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	defer func() {
		if err != nil {
			_ = unix.Close(fd)
			fd = -1
		}
	}()
	unix.CloseOnExec(fd)
	if err = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fd, fmt.Errorf("setsockopt: %w", err)
	}
	if err = unix.SetNonblock(fd, true); err != nil {
		return fd, fmt.Errorf("set nonblock: %w", err)
	}
	if err = unix.Bind(fd, sa); err != nil {
		return fd, fmt.Errorf("bind: %w", err)
	}
	if err = unix.Listen(fd, backlog); err != nil {
		return fd, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// acceptSocket accepts one connection, and makes it non-blocking.
func acceptSocket(lfd int) (int, unix.Sockaddr, error) {
	nfd, sa, err := unix.Accept(lfd)
	if err != nil {
		return -1, nil, err
	}
	unix.CloseOnExec(nfd)
	if err := unix.SetNonblock(nfd, true); err != nil {
		_ = unix.Close(nfd)
		return -1, nil, err
	}
	return nfd, sa, nil
}

// sockaddrTCP converts sa, returning nil for unsupported families.
func sockaddrTCP(sa unix.Sockaddr) *net.TCPAddr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IPv4(sa.Addr[0], sa.Addr[1], sa.Addr[2], sa.Addr[3]), Port: sa.Port}
	case *unix.SockaddrInet6:
		addr := &net.TCPAddr{IP: append(net.IP(nil), sa.Addr[:]...), Port: sa.Port}
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				addr.Zone = ifi.Name
			}
		}
		return addr
	default:
		return nil
	}
}

// peerHost returns the IP of sa as a string, or "" if unknown.
func peerHost(sa unix.Sockaddr) string {
	if addr := sockaddrTCP(sa); addr != nil {
		return addr.IP.String()
	}
	return ""
}
