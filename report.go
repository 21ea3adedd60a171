package fibload

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// Report ranges printed by PrintInfo.
const (
	reportFirstN     = 3
	reportLastN      = 26
	reportUploadMaxN = 25
)

// CallCount returns how many HTTP requests one request for n causes,
// itself included.
func CallCount(n int) int64 {
	if n <= 2 {
		return 1
	}
	return 1 + CallCount(n-1) + CallCount(n-2)
}

// ChildUploadBytes returns the body bytes a server handling n receives from
// its two children's requests, i.e. the upload a POST request for n triggers
// one level down.
func ChildUploadBytes(n int) int64 {
	return TotalBytes(n-1) + TotalBytes(n-2)
}

// PrintInfo writes the call count and payload size tables to w.
func PrintInfo(w io.Writer) {
	printNumberOfCalls(w)
	printUploadBytes(w)
	printTotalUploadSize(w)
}

func printNumberOfCalls(w io.Writer) {
	fmt.Fprintln(w, "Number of calls")
	table := newTable(w, "n", "calls(n-1)", "calls(n-2)", "total")
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT,
	})
	for n := reportFirstN; n <= reportLastN; n++ {
		left, right := CallCount(n-1), CallCount(n-2)
		table.Append([]string{
			strconv.Itoa(n),
			strconv.FormatInt(left, 10),
			strconv.FormatInt(right, 10),
			fmt.Sprintf("%d requires 1+%d+%d=%d calls.", n, left, right, 1+left+right),
		})
	}
	table.Render()
}

func printUploadBytes(w io.Writer) {
	fmt.Fprintln(w, "Upload total size")
	table := newTable(w, "n", "bytes", "kB")
	for n := 1; n <= reportUploadMaxN; n++ {
		size := TotalBytes(n)
		table.Append([]string{
			strconv.Itoa(n),
			strconv.FormatInt(size, 10),
			strconv.FormatInt(size/1024, 10),
		})
	}
	table.Render()
}

func printTotalUploadSize(w io.Writer) {
	fmt.Fprintln(w, "Total upload sizes")
	table := newTable(w, "n", "MB")
	for n := reportFirstN; n <= reportLastN; n++ {
		table.Append([]string{
			strconv.Itoa(n),
			strconv.FormatInt(ChildUploadBytes(n)/1024/1024, 10),
		})
	}
	table.Render()
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	return table
}
