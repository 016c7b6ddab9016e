// kbconfig is the host-side configuration tool for the keyboard: it
// reads and writes the flat address space over the CDC serial link,
// drives calibration, and saves/loads YAML key profiles.
//
//	kbconfig ports
//	kbconfig -port /dev/ttyACM0 get 0
//	kbconfig -port /dev/ttyACM0 repl
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	midi "gitlab.com/gomidi/midi/v2"
	"go.bug.st/serial"

	"analogkb-go/types"
)

const defaultBaud = 115200

func main() {
	port := flag.String("port", "", "serial port of the keyboard")
	baud := flag.Int("baud", defaultBaud, "baud rate")
	flag.Parse()
	args := flag.Args()

	if len(args) == 0 {
		usage()
		os.Exit(2)
	}
	if args[0] == "ports" {
		listPorts()
		return
	}
	if *port == "" {
		fmt.Fprintln(os.Stderr, "kbconfig: -port is required (try: kbconfig ports)")
		os.Exit(2)
	}

	sp, err := serial.Open(*port, &serial.Mode{BaudRate: *baud})
	if err != nil {
		fmt.Fprintf(os.Stderr, "kbconfig: open %s: %v\n", *port, err)
		os.Exit(1)
	}
	defer sp.Close()
	c := NewClient(sp)

	if args[0] == "repl" {
		repl(c)
		return
	}
	if err := run(c, args); err != nil {
		fmt.Fprintln(os.Stderr, "kbconfig:", err)
		os.Exit(1)
	}
}

func listPorts() {
	ports, err := serial.GetPortsList()
	if err != nil {
		fmt.Fprintln(os.Stderr, "kbconfig:", err)
		os.Exit(1)
	}
	if len(ports) == 0 {
		fmt.Println("no serial ports found")
		return
	}
	for _, p := range ports {
		fmt.Println(p)
	}
}

func repl(c *Client) {
	fmt.Println("kbconfig repl; 'help' lists commands, 'quit' exits")
	sc := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		words, err := shlex.Split(sc.Text())
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}
		if len(words) == 0 {
			continue
		}
		if words[0] == "quit" || words[0] == "exit" {
			return
		}
		if err := run(c, words); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func run(c *Client, args []string) error {
	switch args[0] {
	case "help":
		usage()
		return nil

	case "mode":
		if len(args) == 1 {
			m, err := c.Mode()
			if err != nil {
				return err
			}
			fmt.Println(modeName(m))
			return nil
		}
		m, err := parseMode(args[1])
		if err != nil {
			return err
		}
		return c.SetMode(m)

	case "read":
		addr, length, err := parseAddrLen(args[1:])
		if err != nil {
			return err
		}
		b, err := c.Read(addr, length)
		if err != nil {
			return err
		}
		fmt.Printf("% x\n", b)
		return nil

	case "write":
		if len(args) < 3 {
			return errors.New("usage: write <addr> <byte> [byte ...]")
		}
		addr, err := parseU16(args[1])
		if err != nil {
			return err
		}
		var data []byte
		for _, a := range args[2:] {
			v, err := strconv.ParseUint(a, 0, 8)
			if err != nil {
				return err
			}
			data = append(data, byte(v))
		}
		return c.Write(addr, data)

	case "get":
		key, err := parseKey(args[1:])
		if err != nil {
			return err
		}
		k, err := c.KeyConfig(key)
		if err != nil {
			return err
		}
		note, err := c.Note(key)
		if err != nil {
			return err
		}
		cal, err := c.Calibration(key)
		if err != nil {
			return err
		}
		fmt.Printf("key %d: code=0x%02X type=%s actuation=%d up=%d down=%d note=%d cal=%d..%d\n",
			key, k.KeyCode, keyTypeName(k.KeyType), k.ActuationPoint,
			k.RapidUpSensitivity, k.RapidDownSensitivity, note, cal.MinValue, cal.MaxValue)
		return nil

	case "set":
		return setCmd(c, args[1:])

	case "positions":
		pos, err := c.Positions()
		if err != nil {
			return err
		}
		for i, p := range pos {
			fmt.Printf("%3d", p)
			if i%8 == 7 {
				fmt.Println()
			}
		}
		return nil

	case "watch":
		for {
			pos, err := c.Positions()
			if err != nil {
				return err
			}
			fmt.Printf("\r")
			for _, p := range pos {
				fmt.Printf("%3d", p)
			}
			time.Sleep(50 * time.Millisecond)
		}

	case "notes":
		// Render each key's binding as the event it will emit.
		for i := 0; i < types.NumKeys; i++ {
			note, err := c.Note(i)
			if err != nil {
				return err
			}
			fmt.Printf("key %2d -> %s\n", i, midi.NoteOn(0, note, 64))
		}
		return nil

	case "calibrate":
		if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
			return errors.New("usage: calibrate on|off")
		}
		return c.Calibrate(args[1] == "on")

	case "save":
		return c.Save()
	case "defaults":
		return c.FactoryReset()
	case "reset":
		return c.SystemReset()
	case "dfu":
		return c.EnterDFU()

	case "profile":
		if len(args) != 3 {
			return errors.New("usage: profile save|load <file>")
		}
		switch args[1] {
		case "save":
			p, err := fetchProfile(c)
			if err != nil {
				return err
			}
			return saveProfile(args[2], p)
		case "load":
			p, err := loadProfile(args[2])
			if err != nil {
				return err
			}
			return applyProfile(c, p)
		}
		return errors.New("usage: profile save|load <file>")
	}

	return fmt.Errorf("unknown command %q", args[0])
}

func setCmd(c *Client, args []string) error {
	key, err := parseKey(args)
	if err != nil {
		return err
	}
	k, err := c.KeyConfig(key)
	if err != nil {
		return err
	}
	for _, a := range args[1:] {
		name, val, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("expected field=value, got %q", a)
		}
		switch name {
		case "code":
			v, err := strconv.ParseUint(val, 0, 8)
			if err != nil {
				return err
			}
			k.KeyCode = uint8(v)
		case "type":
			t, err := parseKeyType(val)
			if err != nil {
				return err
			}
			k.KeyType = t
		case "actuation":
			v, err := strconv.ParseUint(val, 0, 8)
			if err != nil {
				return err
			}
			k.ActuationPoint = uint8(v)
		case "up":
			v, err := strconv.ParseUint(val, 0, 8)
			if err != nil {
				return err
			}
			k.RapidUpSensitivity = uint8(v)
		case "down":
			v, err := strconv.ParseUint(val, 0, 8)
			if err != nil {
				return err
			}
			k.RapidDownSensitivity = uint8(v)
		case "note":
			v, err := strconv.ParseUint(val, 0, 7)
			if err != nil {
				return err
			}
			if err := c.SetNote(key, uint8(v)); err != nil {
				return err
			}
			continue
		default:
			return fmt.Errorf("unknown field %q", name)
		}
	}
	return c.SetKeyConfig(key, k)
}

// ---- parsing helpers ----

func parseU16(s string) (uint16, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func parseAddrLen(args []string) (uint16, int, error) {
	if len(args) != 2 {
		return 0, 0, errors.New("usage: read <addr> <len>")
	}
	addr, err := parseU16(args[0])
	if err != nil {
		return 0, 0, err
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, 0, err
	}
	return addr, n, nil
}

func parseKey(args []string) (int, error) {
	if len(args) < 1 {
		return 0, errors.New("missing key index")
	}
	key, err := strconv.Atoi(args[0])
	if err != nil || key < 0 || key >= types.NumKeys {
		return 0, errors.New("key index must be 0..31")
	}
	return key, nil
}

var modeNames = map[types.Mode]string{
	types.ModeDisabled:  "disabled",
	types.ModeCalibrate: "calibrate",
	types.ModeKeyboard:  "keyboard",
	types.ModeMIDI:      "midi",
}

func modeName(m types.Mode) string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "unknown"
}

func parseMode(s string) (types.Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown mode %q", s)
}

func usage() {
	fmt.Println(`kbconfig [-port P] [-baud N] <command>

  ports                       list serial ports
  repl                        interactive shell
  mode [name]                 get or set the output mode
  read <addr> <len>           raw read from the address space
  write <addr> <b> [b ...]    raw write
  get <key>                   show one key's settings
  set <key> f=v [f=v ...]     change key settings (code, type, actuation,
                              up, down, note)
  positions                   one-shot travel readout
  watch                       continuous travel readout
  notes                       show the MIDI note bindings
  calibrate on|off            start/stop calibration
  save                        persist config to flash
  defaults                    factory-reset the config
  reset                       reboot the device
  dfu                         jump to the system bootloader
  profile save|load <file>    YAML key-profile round trip`)
}
