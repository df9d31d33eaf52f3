// Copyright 2024 The Nanoplane Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// nanocat is a command-line diagnostic tool for poking at any of the ten
// scalability protocols: bind or connect a socket of a given type, send
// data on an interval, and/or print whatever arrives. Modeled on the
// teacher's own macat (nanomsg-mangos-v1/macat/macat.go).
package main

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/droundy/goopt"

	"github.com/nanoplane/nanoplane"
	"github.com/nanoplane/nanoplane/protocol/bus"
	"github.com/nanoplane/nanoplane/protocol/pair"
	"github.com/nanoplane/nanoplane/protocol/pub"
	"github.com/nanoplane/nanoplane/protocol/pull"
	"github.com/nanoplane/nanoplane/protocol/push"
	"github.com/nanoplane/nanoplane/protocol/rep"
	"github.com/nanoplane/nanoplane/protocol/req"
	"github.com/nanoplane/nanoplane/protocol/respondent"
	"github.com/nanoplane/nanoplane/protocol/sub"
	"github.com/nanoplane/nanoplane/protocol/surveyor"
	"github.com/nanoplane/nanoplane/reactor"
)

var verbose int
var protoSet bool
var protoName string
var dialAddrs []string
var listenAddrs []string
var subscriptions []string
var recvTimeout int
var sendTimeout int
var sendInterval int
var sendDelay int
var sendData []byte
var printFormat string

func setProto(p string) error {
	if protoSet {
		return errors.New("protocol already selected")
	}
	protoName = p
	protoSet = true
	return nil
}

func addDial(addr string) error {
	if !strings.Contains(addr, "://") {
		return errors.New("invalid address format")
	}
	dialAddrs = append(dialAddrs, addr)
	return nil
}

func addListen(addr string) error {
	if !strings.Contains(addr, "://") {
		return errors.New("invalid address format")
	}
	listenAddrs = append(listenAddrs, addr)
	return nil
}

func addListenIPC(path string) error { return addListen("ipc://" + path) }
func addDialIPC(path string) error   { return addDial("ipc://" + path) }
func addListenLocal(port string) error {
	return addListen("tcp://127.0.0.1:" + port)
}
func addDialLocal(port string) error {
	return addDial("tcp://127.0.0.1:" + port)
}

func addSub(s string) error {
	subscriptions = append(subscriptions, s)
	return nil
}

func setSendData(data string) error {
	if sendData != nil {
		return errors.New("data or file already set")
	}
	sendData = []byte(data)
	return nil
}

func setSendFile(path string) error {
	if sendData != nil {
		return errors.New("data or file already set")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sendData, err = ioutil.ReadAll(f)
	return err
}

func setFormat(f string) error {
	if len(printFormat) > 0 {
		return errors.New("output format already set")
	}
	switch f {
	case "no", "raw", "ascii", "quoted", "msgpack":
	default:
		return errors.New("invalid format type")
	}
	printFormat = f
	return nil
}

func fatalf(format string, v ...interface{}) {
	fmt.Fprintln(os.Stderr, fmt.Sprintf(format, v...))
	os.Exit(1)
}

func init() {
	goopt.NoArg([]string{"--verbose", "-v"}, "Increase verbosity", func() error {
		verbose++
		return nil
	})
	goopt.NoArg([]string{"--silent", "-q"}, "Decrease verbosity", func() error {
		verbose--
		return nil
	})

	goopt.NoArg([]string{"--push"}, "Use PUSH socket type", func() error { return setProto(push.SelfName) })
	goopt.NoArg([]string{"--pull"}, "Use PULL socket type", func() error { return setProto(pull.SelfName) })
	goopt.NoArg([]string{"--pub"}, "Use PUB socket type", func() error { return setProto(pub.SelfName) })
	goopt.NoArg([]string{"--sub"}, "Use SUB socket type", func() error { return setProto(sub.SelfName) })
	goopt.NoArg([]string{"--req"}, "Use REQ socket type", func() error { return setProto(req.SelfName) })
	goopt.NoArg([]string{"--rep"}, "Use REP socket type", func() error { return setProto(rep.SelfName) })
	goopt.NoArg([]string{"--surveyor"}, "Use SURVEYOR socket type", func() error { return setProto(surveyor.SelfName) })
	goopt.NoArg([]string{"--respondent"}, "Use RESPONDENT socket type", func() error { return setProto(respondent.SelfName) })
	goopt.NoArg([]string{"--bus"}, "Use BUS socket type", func() error { return setProto(bus.SelfName) })
	goopt.NoArg([]string{"--pair"}, "Use PAIR socket type", func() error { return setProto(pair.SelfName) })

	goopt.ReqArg([]string{"--bind"}, "ADDR", "Bind socket to ADDR", addListen)
	goopt.ReqArg([]string{"--connect"}, "ADDR", "Connect socket to ADDR", addDial)
	goopt.ReqArg([]string{"--bind-ipc", "-X"}, "PATH", "Bind socket to IPC PATH", addListenIPC)
	goopt.ReqArg([]string{"--connect-ipc", "-x"}, "PATH", "Connect socket to IPC PATH", addDialIPC)
	goopt.ReqArg([]string{"--bind-local", "-L"}, "PORT", "Bind socket to TCP localhost PORT", addListenLocal)
	goopt.ReqArg([]string{"--connect-local", "-l"}, "PORT", "Connect socket to TCP localhost PORT", addDialLocal)
	goopt.ReqArg([]string{"--subscribe"}, "PREFIX", "Subscribe to PREFIX (default is wildcard)", addSub)
	goopt.ReqArg([]string{"--recv-timeout"}, "SEC", "Set receive timeout", func(to string) error {
		v, err := strconv.Atoi(to)
		if err != nil {
			return errors.New("value not an integer")
		}
		recvTimeout = v
		return nil
	})
	goopt.ReqArg([]string{"--send-timeout"}, "SEC", "Set send timeout", func(to string) error {
		v, err := strconv.Atoi(to)
		if err != nil {
			return errors.New("value not an integer")
		}
		sendTimeout = v
		return nil
	})
	goopt.ReqArg([]string{"--send-delay", "-d"}, "SEC", "Set initial send delay", func(to string) error {
		v, err := strconv.Atoi(to)
		if err != nil {
			return errors.New("value not an integer")
		}
		sendDelay = v
		return nil
	})
	goopt.NoArg([]string{"--raw"}, "Raw output, no delimiters", func() error { return setFormat("raw") })
	goopt.NoArg([]string{"--ascii", "-A"}, "ASCII output, one per line", func() error { return setFormat("ascii") })
	goopt.NoArg([]string{"--quoted", "-Q"}, "Quoted output, one per line", func() error { return setFormat("quoted") })
	goopt.NoArg([]string{"--msgpack"}, "Msgpacked binary output (see msgpack.org)", func() error { return setFormat("msgpack") })
	goopt.ReqArg([]string{"--interval", "-i"}, "SEC", "Send DATA every SEC seconds", func(to string) error {
		v, err := strconv.Atoi(to)
		if err != nil {
			return errors.New("value not an integer")
		}
		sendInterval = v
		return nil
	})
	goopt.ReqArg([]string{"--data", "-D"}, "DATA", "Data to send", setSendData)
	goopt.ReqArg([]string{"--file", "-F"}, "FILE", "Send contents of FILE", setSendFile)

	goopt.Description = func() string {
		return `nanocat is a command-line interface to send and receive data
via the nanoplane implementation of the scalability protocols. It is designed
to be usable as a drop-in replacement for nanocat(1).`
	}
	goopt.Author = "The Nanoplane Authors"
	goopt.Suite = "nanoplane"
	goopt.Summary = "command line interface to nanoplane messaging"
}

func newSocket(sess *reactor.Session, name string) (nanoplane.Socket, error) {
	switch name {
	case push.SelfName:
		return push.NewSocket(sess)
	case pull.SelfName:
		return pull.NewSocket(sess)
	case pub.SelfName:
		return pub.NewSocket(sess)
	case sub.SelfName:
		return sub.NewSocket(sess)
	case req.SelfName:
		return req.NewSocket(sess)
	case rep.SelfName:
		return rep.NewSocket(sess)
	case surveyor.SelfName:
		return surveyor.NewSocket(sess)
	case respondent.SelfName:
		return respondent.NewSocket(sess)
	case bus.SelfName:
		return bus.NewSocket(sess)
	case pair.SelfName:
		return pair.NewSocket(sess)
	}
	return nil, fmt.Errorf("unknown protocol %q", name)
}

func printMsg(msg *nanoplane.Message) {
	bw := bufio.NewWriter(os.Stdout)
	defer bw.Flush()
	switch printFormat {
	case "no", "":
		return
	case "raw":
		bw.Write(msg.Body)
	case "ascii":
		for _, b := range msg.Body {
			if unicode.IsPrint(rune(b)) {
				bw.WriteByte(b)
			} else {
				bw.WriteByte('.')
			}
		}
		bw.WriteString("\n")
	case "quoted":
		for _, b := range msg.Body {
			switch b {
			case '\n':
				bw.WriteString("\\n")
			case '\r':
				bw.WriteString("\\r")
			case '\\':
				bw.WriteString("\\\\")
			case '"':
				bw.WriteString("\\\"")
			default:
				if unicode.IsPrint(rune(b)) {
					bw.WriteByte(b)
				} else {
					fmt.Fprintf(bw, "\\x%02x", b)
				}
			}
		}
		bw.WriteString("\n")
	case "msgpack":
		enc := make([]byte, 5)
		switch {
		case len(msg.Body) < 256:
			enc = enc[:2]
			enc[0] = 0xc4
			enc[1] = byte(len(msg.Body))
		case len(msg.Body) < 65536:
			enc = enc[:3]
			enc[0] = 0xc5
			binary.BigEndian.PutUint16(enc[1:], uint16(len(msg.Body)))
		default:
			enc = enc[:5]
			enc[0] = 0xc6
			binary.BigEndian.PutUint32(enc[1:], uint32(len(msg.Body)))
		}
		bw.Write(enc)
		bw.Write(msg.Body)
	}
}

func recvLoop(sock nanoplane.Socket, done chan struct{}) {
	defer close(done)
	for {
		msg, err := sock.RecvMsg()
		switch err {
		case nanoplane.ErrRecvTimeout:
			return
		case nil:
		default:
			fatalf("RecvMsg failed: %v", err)
		}
		printMsg(msg)
		msg.Free()
	}
}

func sendLoop(sock nanoplane.Socket, done chan struct{}) {
	defer close(done)
	if sendData == nil {
		fatalf("No data to send!")
	}
	for {
		msg := nanoplane.NewMessage(len(sendData))
		copy(msg.Body, sendData)
		if err := sock.SendMsg(msg); err != nil {
			fatalf("SendMsg failed: %v", err)
		}
		if sendInterval > 0 {
			time.Sleep(time.Duration(sendInterval) * time.Second)
			continue
		}
		return
	}
}

func replyLoop(sock nanoplane.Socket, done chan struct{}) {
	defer close(done)
	if sendData == nil {
		fatalf("No data to send!")
	}
	for {
		msg, err := sock.RecvMsg()
		switch err {
		case nanoplane.ErrRecvTimeout:
			return
		case nil:
		default:
			fatalf("RecvMsg failed: %v", err)
		}
		printMsg(msg)
		msg.Free()

		reply := nanoplane.NewMessage(len(sendData))
		copy(reply.Body, sendData)
		if err := sock.SendMsg(reply); err != nil {
			fatalf("SendMsg failed: %v", err)
		}
	}
}

func main() {
	goopt.Parse(nil)

	if !protoSet {
		fatalf("Protocol not specified.")
	}

	sess := reactor.NewSession()
	defer sess.Close()

	sock, err := newSocket(sess, protoName)
	if err != nil {
		fatalf("Failed creating socket: %v", err)
	}
	defer sock.Close()

	if len(listenAddrs) == 0 && len(dialAddrs) == 0 {
		fatalf("No address specified.")
	}

	if protoName != sub.SelfName {
		if len(subscriptions) > 0 {
			fatalf("Subscriptions only valid with SUB type sockets.")
		}
	} else if len(subscriptions) > 0 {
		for _, s := range subscriptions {
			if err := sock.SetOption(nanoplane.OptionSubscribe, s); err != nil {
				fatalf("Can't subscribe: %v", err)
			}
		}
	} else if err := sock.SetOption(nanoplane.OptionSubscribe, []byte{}); err != nil {
		fatalf("Can't wildcard subscribe: %v", err)
	}

	if recvTimeout > 0 {
		sock.SetOption(nanoplane.OptionRecvDeadline, time.Duration(recvTimeout)*time.Second)
	}
	if sendTimeout > 0 {
		sock.SetOption(nanoplane.OptionSendDeadline, time.Duration(sendTimeout)*time.Second)
	}

	for _, addr := range listenAddrs {
		if err := sock.Listen(addr); err != nil {
			fatalf("Bind(%s): %v", addr, err)
		}
	}
	for _, addr := range dialAddrs {
		if err := sock.Dial(addr); err != nil {
			fatalf("Dial(%s): %v", addr, err)
		}
	}

	time.Sleep(time.Second * time.Duration(sendDelay))

	rxdone := make(chan struct{})
	txdone := make(chan struct{})

	switch protoName {
	case push.SelfName, pub.SelfName:
		go sendLoop(sock, txdone)
		close(rxdone)
	case pull.SelfName, sub.SelfName:
		go recvLoop(sock, rxdone)
		close(txdone)
	case pair.SelfName, bus.SelfName:
		if sendData != nil {
			go sendLoop(sock, txdone)
		} else {
			close(txdone)
		}
		go recvLoop(sock, rxdone)
	case surveyor.SelfName, req.SelfName:
		go sendLoop(sock, txdone)
		go recvLoop(sock, rxdone)
	case rep.SelfName, respondent.SelfName:
		if sendData != nil {
			go replyLoop(sock, rxdone)
		} else {
			go recvLoop(sock, rxdone)
		}
		close(txdone)
	default:
		fatalf("Unknown protocol!")
	}

	<-rxdone
	<-txdone
}
