// fixturectl 为 fixture 流的命令行入口。
//
// 子命令：
//
//	dump     将存储中的对象导出为 fixture 流
//	load     将 fixture 流装载进存储
//	convert  在格式之间转换 fixture 流（逐条记录，无需模型定义）
//	formats  列出可用格式
//
// dump/load 依赖进程内已注册的模型，业务模型包以空导入方式
// 编入二进制（与 database/sql 驱动注册同理）。
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	_ "go.uber.org/automaxprocs"

	"github.com/lk2023060901/fixture-garden-go/application"
	"github.com/lk2023060901/fixture-garden-go/internal/fixture"
	"github.com/lk2023060901/fixture-garden-go/internal/serde"
	"github.com/lk2023060901/fixture-garden-go/pkg/log"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "dump":
		err = runDump(os.Args[2:])
	case "load":
		err = runLoad(os.Args[2:])
	case "convert":
		err = runConvert(os.Args[2:])
	case "formats":
		err = runFormats()
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Error("fixturectl failed", zap.String("command", os.Args[1]), zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: fixturectl <command> [flags]

commands:
  dump     -format <name> [-o <file>] [-labels a.b,c.d] [-indent] [-natural]
  load     -format <name> [-i <file>] [-ignore-nonexistent]
  convert  -from <name> -to <name> [-i <file>] [-o <file>] [-indent]
  formats

common flags:
  -config / --config <file>   config file (storage backend, logging)`)
}

func newApp() (*application.Application, error) {
	app := application.New()
	if err := app.Run(); err != nil {
		return nil, err
	}
	return app, nil
}

func runDump(args []string) error {
	fs := flag.NewFlagSet("dump", flag.ExitOnError)
	format := fs.String("format", serde.FormatJSON, "output format")
	output := fs.String("o", "", "output file (default stdout)")
	labels := fs.String("labels", "", "comma separated model labels (default all)")
	indent := fs.Bool("indent", false, "indent text output")
	natural := fs.Bool("natural", false, "use natural keys instead of primary keys")
	fs.String("config", "", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := app.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	w, err := openOutput(*output)
	if err != nil {
		return err
	}

	opts := []serde.Option{serde.WithIndent(*indent), serde.WithNaturalPrimaryKeys(*natural)}
	n, err := fixture.Dump(ctx, st, splitLabels(*labels), *format, w, opts...)
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "dumped %d records\n", n)
	return nil
}

func runLoad(args []string) error {
	fs := flag.NewFlagSet("load", flag.ExitOnError)
	format := fs.String("format", serde.FormatJSON, "input format")
	input := fs.String("i", "", "input file (default stdin)")
	ignore := fs.Bool("ignore-nonexistent", false, "skip fields missing from the model")
	fs.String("config", "", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	app, err := newApp()
	if err != nil {
		return err
	}
	ctx := context.Background()
	st, err := app.OpenStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	r, err := openInput(*input)
	if err != nil {
		return err
	}
	defer r.Close()

	n, err := fixture.Load(ctx, st, *format, r, serde.WithIgnoreNonExistent(*ignore))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "loaded %d objects\n", n)
	return nil
}

func runConvert(args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	from := fs.String("from", "", "input format")
	to := fs.String("to", "", "output format")
	input := fs.String("i", "", "input file (default stdin)")
	output := fs.String("o", "", "output file (default stdout)")
	indent := fs.Bool("indent", false, "indent text output")
	fs.String("config", "", "config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *from == "" || *to == "" {
		return fmt.Errorf("convert requires both -from and -to")
	}

	if _, err := newApp(); err != nil {
		return err
	}

	r, err := openInput(*input)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := openOutput(*output)
	if err != nil {
		return err
	}

	n, err := convertStream(r, w, *from, *to, *indent)
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "converted %d records\n", n)
	return nil
}

func convertStream(r io.Reader, w io.Writer, from, to string, indent bool) (int, error) {
	f, err := serde.GetFormat(from)
	if err != nil {
		return 0, err
	}
	parser, err := f.NewParser(r, &serde.Options{})
	if err != nil {
		return 0, err
	}

	var recs []*serde.Record
	for {
		rec, err := parser.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
		recs = append(recs, rec)
	}

	if err := serde.SerializeRecords(context.Background(), to, w, recs, serde.WithIndent(indent)); err != nil {
		return 0, err
	}
	return len(recs), nil
}

func runFormats() error {
	for _, name := range serde.Formats() {
		fmt.Println(name)
	}
	return nil
}

func splitLabels(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// openOutput 打开输出目标。路径为空时写标准输出（Close 为空操作）。
// 文件目标的 Close 错误必须向上传递：落盘失败的导出不能报告成功。
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopWriteCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
