package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/wegman-software/dat2sqlite-go/internal/logger"
	"github.com/wegman-software/dat2sqlite-go/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats <store.db>",
	Short: "Print dataset statistics from a published store",
	Args:  cobra.ExactArgs(1),
	Run:   runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) {
	defer logger.Sync()

	st, err := store.Open(args[0])
	if err != nil {
		exitWithError("failed to open store", err)
	}
	defer st.Close()

	s, err := st.Stats()
	if err != nil {
		exitWithError("failed to read statistics", err)
	}

	fmt.Printf("Roads:          %d\n", s.TotalRoads)
	fmt.Printf("Points:         %d\n", s.TotalPoints)
	fmt.Printf("Intersections:  %d\n", s.TotalIntersections)
	fmt.Printf("Admin areas:    %d\n", s.TotalAdminAreas)
	fmt.Printf("Names:          %d\n", s.TotalNames)
	fmt.Printf("Range flagged:  %d\n", s.RangeFlagged)
	fmt.Printf("Bounding box:   %.5f,%.5f  %.5f,%.5f\n", s.BBox.West, s.BBox.South, s.BBox.East, s.BBox.North)
	fmt.Printf("Center:         %.5f,%.5f\n", s.CenterLon, s.CenterLat)
	if len(s.RoadTypes) > 0 {
		fmt.Println("Road types:")
		for _, t := range s.RoadTypes {
			fmt.Printf("  %-40s %d\n", t.Type, t.Count)
		}
	}
	if len(s.PointTypes) > 0 {
		fmt.Println("Point types:")
		for _, t := range s.PointTypes {
			fmt.Printf("  %-40s %d\n", t.Type, t.Count)
		}
	}
}
