// Command nvmekv drives the KV controller backend against a local base
// directory: it builds real packed submission entries, pushes them through
// the decoder and task dispatcher, and prints the completion. Useful for
// poking at a namespace without the kernel-side NVMe plumbing.
package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	nvmekv "github.com/airmettle/go-nvme-kv"
	"github.com/airmettle/go-nvme-kv/internal/logging"
)

const completionTimeout = 30 * time.Second

var (
	flagBaseDir string
	flagBus     uint32
	flagNsid    uint32
	flagThreads int
	flagDBConns int
	flagHexKey  bool
	flagDebug   bool
)

// cli bundles a runtime with the host-side stand-ins.
type cli struct {
	runtime   *nvmekv.Runtime
	buffers   *nvmekv.HostBufferMap
	completed *nvmekv.CompletionRecorder
}

func newCLI() (*cli, error) {
	level := logging.LevelWarn
	if flagDebug {
		level = logging.LevelDebug
	}
	logger := logging.NewLogger(&logging.Config{Level: level, Output: os.Stderr})

	buffers := nvmekv.NewHostBufferMap()
	completed := nvmekv.NewCompletionRecorder()
	runtime, err := nvmekv.New(nvmekv.Params{
		BaseDir:    flagBaseDir,
		NumThreads: flagThreads,
		NumDBConns: flagDBConns,
		MapPayload: buffers.Map,
		Complete:   completed.Complete,
	}, &nvmekv.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return &cli{runtime: runtime, buffers: buffers, completed: completed}, nil
}

func (c *cli) close() {
	c.runtime.Close()
}

// submit pushes one request through the pipeline and waits for its
// completion, synchronous or deferred.
func (c *cli) submit(req *nvmekv.Request) (nvmekv.Completion, error) {
	status, result := c.runtime.Process(req)
	if status != nvmekv.StatusNoComplete {
		return nvmekv.Completion{Req: req, Status: status, Result: result}, nil
	}
	comp, ok := c.completed.Wait(completionTimeout)
	if !ok {
		return nvmekv.Completion{}, fmt.Errorf("timed out waiting for completion")
	}
	return comp, nil
}

func parseKey(arg string) ([]byte, error) {
	if flagHexKey {
		key, err := hex.DecodeString(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid hex key: %w", err)
		}
		return key, nil
	}
	return []byte(arg), nil
}

func newRequest(opcode uint8, key []byte) (*nvmekv.Request, error) {
	req := &nvmekv.Request{Bus: flagBus}
	req.Cmd.Opcode = opcode
	req.Cmd.Nsid = flagNsid
	if err := nvmekv.PackKey(&req.Cmd, key); err != nil {
		return nil, err
	}
	return req, nil
}

func statusErr(comp nvmekv.Completion) error {
	if comp.Status&^nvmekv.StatusDNR != nvmekv.StatusSuccess {
		return fmt.Errorf("command failed with status 0x%04x", comp.Status)
	}
	return nil
}

func selectType(name string) (uint8, error) {
	switch name {
	case "csv":
		return nvmekv.SelectTypeCSV, nil
	case "json":
		return nvmekv.SelectTypeJSON, nil
	case "parquet":
		return nvmekv.SelectTypeParquet, nil
	default:
		return 0, fmt.Errorf("unknown format %q (want csv, json, or parquet)", name)
	}
}

func main() {
	root := &cobra.Command{
		Use:           "nvmekv",
		Short:         "Drive the NVMe KV backend against a local base directory",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagBaseDir, "base-dir", "", "object store root (default KV_BASE_DIR or .)")
	root.PersistentFlags().Uint32Var(&flagBus, "bus", 0, "PCI bus number coordinate")
	root.PersistentFlags().Uint32Var(&flagNsid, "nsid", 1, "namespace id coordinate")
	root.PersistentFlags().IntVar(&flagThreads, "threads", 0, "task worker count (default KV_NUM_THREADS or 5)")
	root.PersistentFlags().IntVar(&flagDBConns, "db-conns", 0, "query connection pool size (default KV_NUM_DB_CONNS or 5)")
	root.PersistentFlags().BoolVar(&flagHexKey, "hex", false, "interpret key arguments as hex")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")

	root.AddCommand(storeCmd(), retrieveCmd(), existsCmd(), deleteCmd(), listCmd(), selectCmd(), selectGetCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "nvmekv:", err)
		os.Exit(1)
	}
}

func storeCmd() *cobra.Command {
	var (
		appendFlag   bool
		mustExist    bool
		mustNotExist bool
	)
	cmd := &cobra.Command{
		Use:   "store <key> [value]",
		Short: "Store an object (value from argument or stdin)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			var value []byte
			if len(args) == 2 {
				value = []byte(args[1])
			} else if value, err = io.ReadAll(os.Stdin); err != nil {
				return err
			}

			c, err := newCLI()
			if err != nil {
				return err
			}
			defer c.close()

			req, err := newRequest(nvmekv.OpKvStore, key)
			if err != nil {
				return err
			}
			var opts uint8
			if mustExist {
				opts |= nvmekv.StoreOptMustExist
			}
			if mustNotExist {
				opts |= nvmekv.StoreOptMustNotExist
			}
			if appendFlag {
				opts |= nvmekv.StoreOptAppend
			}
			req.Cmd.SetOptions(opts)
			req.Cmd.HostBufferSize = uint32(len(value))
			c.buffers.Register(req, &nvmekv.HostBuffer{Data: value})

			comp, err := c.submit(req)
			if err != nil {
				return err
			}
			if err := statusErr(comp); err != nil {
				return err
			}
			fmt.Printf("stored %d bytes\n", len(value))
			return nil
		},
	}
	cmd.Flags().BoolVar(&appendFlag, "append", false, "append to an existing object")
	cmd.Flags().BoolVar(&mustExist, "must-exist", false, "fail unless the object exists")
	cmd.Flags().BoolVar(&mustNotExist, "must-not-exist", false, "fail if the object exists")
	return cmd
}

func retrieveCmd() *cobra.Command {
	var (
		offset uint32
		maxLen uint32
	)
	cmd := &cobra.Command{
		Use:   "retrieve <key>",
		Short: "Read an object to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			c, err := newCLI()
			if err != nil {
				return err
			}
			defer c.close()

			req, err := newRequest(nvmekv.OpKvRetrieve, key)
			if err != nil {
				return err
			}
			req.Cmd.ReadOffset = offset
			req.Cmd.HostBufferSize = maxLen

			comp, err := c.submit(req)
			if err != nil {
				return err
			}
			if err := statusErr(comp); err != nil {
				return err
			}
			total := comp.Result
			buf := c.buffers.Lookup(req)
			var n uint32
			if total > offset {
				n = total - offset
			}
			if n > uint32(len(buf.Data)) {
				n = uint32(len(buf.Data))
			}
			os.Stdout.Write(buf.Data[:n])
			fmt.Fprintf(os.Stderr, "object size: %d bytes\n", total)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&offset, "offset", 0, "read offset")
	cmd.Flags().Uint32Var(&maxLen, "max", 1<<20, "host buffer size")
	return cmd
}

func existsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exists <key>",
		Short: "Probe whether an object exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			c, err := newCLI()
			if err != nil {
				return err
			}
			defer c.close()

			req, err := newRequest(nvmekv.OpKvExist, key)
			if err != nil {
				return err
			}
			comp, err := c.submit(req)
			if err != nil {
				return err
			}
			if comp.Status&^nvmekv.StatusDNR == nvmekv.StatusKvNotFound {
				fmt.Println("not found")
				return nil
			}
			if err := statusErr(comp); err != nil {
				return err
			}
			fmt.Println("exists")
			return nil
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			c, err := newCLI()
			if err != nil {
				return err
			}
			defer c.close()

			req, err := newRequest(nvmekv.OpKvDelete, key)
			if err != nil {
				return err
			}
			comp, err := c.submit(req)
			if err != nil {
				return err
			}
			if err := statusErr(comp); err != nil {
				return err
			}
			fmt.Println("deleted")
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var (
		offset uint32
		bufLen uint32
	)
	cmd := &cobra.Command{
		Use:   "list [prefix]",
		Short: "List keys at or after a prefix in hex order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var key []byte
			var err error
			if len(args) == 1 {
				if key, err = parseKey(args[0]); err != nil {
					return err
				}
			}
			c, err := newCLI()
			if err != nil {
				return err
			}
			defer c.close()

			req, err := newRequest(nvmekv.OpKvList, key)
			if err != nil {
				return err
			}
			req.Cmd.ReadOffset = offset
			req.Cmd.HostBufferSize = bufLen

			comp, err := c.submit(req)
			if err != nil {
				return err
			}
			if err := statusErr(comp); err != nil {
				return err
			}

			buf := c.buffers.Lookup(req)
			keys, err := decodeListResponse(buf.Data)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Printf("%s  (%s)\n", string(k), hex.EncodeToString(k))
			}
			fmt.Fprintf(os.Stderr, "%d keys\n", comp.Result)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&offset, "offset", 0, "skip this many keys")
	cmd.Flags().Uint32Var(&bufLen, "max", 1<<20, "host buffer size")
	return cmd
}

// retrieveSelect issues one RETRIEVE_SELECT against a cached result and
// writes the delivered window to stdout. The completion's result word is
// the total cached length.
func (c *cli) retrieveSelect(id, offset, bufLen uint32, opts uint8) (total uint32, err error) {
	req := &nvmekv.Request{Bus: flagBus}
	req.Cmd.Opcode = nvmekv.OpKvRetrieveSelect
	req.Cmd.Nsid = flagNsid
	req.Cmd.SelectID = id
	req.Cmd.ReadOffset = offset
	req.Cmd.HostBufferSize = bufLen
	req.Cmd.SetOptions(opts)

	comp, err := c.submit(req)
	if err != nil {
		return 0, err
	}
	if err := statusErr(comp); err != nil {
		return 0, err
	}
	total = comp.Result
	buf := c.buffers.Lookup(req)
	var n uint32
	if total > offset {
		n = total - offset
	}
	if n > uint32(len(buf.Data)) {
		n = uint32(len(buf.Data))
	}
	os.Stdout.Write(buf.Data[:n])
	return total, nil
}

func selectCmd() *cobra.Command {
	var (
		inFmt     string
		outFmt    string
		inHeader  bool
		outHeader bool
		bufLen    uint32
		noFetch   bool
	)
	cmd := &cobra.Command{
		Use:   "select <key> <sql>",
		Short: "Run a select query over an object; prints the result handle",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			key, err := parseKey(args[0])
			if err != nil {
				return err
			}
			sqlText := args[1]

			in, err := selectType(inFmt)
			if err != nil {
				return err
			}
			out, err := selectType(outFmt)
			if err != nil {
				return err
			}

			c, err := newCLI()
			if err != nil {
				return err
			}
			defer c.close()

			req, err := newRequest(nvmekv.OpKvSendSelect, key)
			if err != nil {
				return err
			}
			opts := in | out<<2
			if inHeader {
				opts |= nvmekv.SelectOptInputHeader
			}
			if outHeader {
				opts |= nvmekv.SelectOptOutputHeader
			}
			req.Cmd.SetOptions(opts)
			req.Cmd.HostBufferSize = uint32(len(sqlText))
			c.buffers.Register(req, &nvmekv.HostBuffer{Data: []byte(sqlText)})

			comp, err := c.submit(req)
			if err != nil {
				return err
			}
			if err := statusErr(comp); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "select id: %d\n", comp.Result)
			if noFetch {
				return nil
			}

			// Page the cached result back out through RETRIEVE_SELECT.
			_, err = c.retrieveSelect(comp.Result, 0, bufLen, 0)
			return err
		},
	}
	cmd.Flags().StringVar(&inFmt, "in", "csv", "input format: csv, json, parquet")
	cmd.Flags().StringVar(&outFmt, "out", "csv", "output format: csv, json, parquet")
	cmd.Flags().BoolVar(&inHeader, "in-header", false, "CSV input carries a header row")
	cmd.Flags().BoolVar(&outHeader, "out-header", false, "emit a header row on CSV output")
	cmd.Flags().Uint32Var(&bufLen, "max", 1<<20, "host buffer size for the result")
	cmd.Flags().BoolVar(&noFetch, "no-fetch", false, "leave the result in the cache instead of fetching it")
	return cmd
}

func selectGetCmd() *cobra.Command {
	var (
		offset       uint32
		bufLen       uint32
		pin          bool
		pinIfPartial bool
	)
	cmd := &cobra.Command{
		Use:   "select-get <id>",
		Short: "Fetch a window of a cached select result by handle",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid select id %q: %w", args[0], err)
			}

			c, err := newCLI()
			if err != nil {
				return err
			}
			defer c.close()

			var opts uint8
			if pin {
				opts |= nvmekv.RetrieveSelectOptDoNotFree
			}
			if pinIfPartial {
				opts |= nvmekv.RetrieveSelectOptDoNotFreeIfNotFetched
			}
			total, err := c.retrieveSelect(uint32(id), offset, bufLen, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "result size: %d bytes\n", total)
			return nil
		},
	}
	cmd.Flags().Uint32Var(&offset, "offset", 0, "read offset into the cached result")
	cmd.Flags().Uint32Var(&bufLen, "max", 1<<20, "host buffer size for the window")
	cmd.Flags().BoolVar(&pin, "pin", false, "keep the cache slot alive after this fetch")
	cmd.Flags().BoolVar(&pinIfPartial, "pin-if-partial", false, "keep the slot only if this fetch does not reach the end")
	return cmd
}

// decodeListResponse parses the LIST response block written to the host.
func decodeListResponse(data []byte) ([][]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("short list response")
	}
	count := uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16 | uint32(data[3])<<24
	keys := make([][]byte, 0, count)
	pos := 4
	for i := uint32(0); i < count; i++ {
		if pos+2 > len(data) {
			return nil, fmt.Errorf("truncated list response")
		}
		keyLen := int(data[pos]) | int(data[pos+1])<<8
		pos += 2
		if pos+keyLen > len(data) {
			return nil, fmt.Errorf("truncated list response")
		}
		keys = append(keys, data[pos:pos+keyLen])
		pos += keyLen
		pos += (4 - (2+keyLen)%4) % 4
	}
	return keys, nil
}
