package hub_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/geosat-ops/sentineldownloader/catalog/entities"
	"github.com/geosat-ops/sentineldownloader/common"
	db "github.com/geosat-ops/sentineldownloader/interface/database"
)

const (
	sourceID1 = "S2B_MSIL1C_20210612T103629_N0300_R008_T32TLR_20210612T124356"
	sourceID2 = "S2A_MSIL1C_20210605T103021_N0300_R108_T32TLR_20210605T123456"
)

func testProducts(quicklookURL string) []*common.Product {
	return []*common.Product{
		{
			SourceID: sourceID1,
			Data: common.ProductAttrs{
				UUID:          "8a5c4e66-0a21-44e0-98ff-ab2862a12b15",
				Date:          time.Date(2021, 6, 12, 10, 36, 29, 0, time.UTC),
				QuicklookURL:  quicklookURL + "/" + sourceID1,
				Constellation: common.Sentinel2,
				CloudCover:    4.5,
			},
		},
		{
			SourceID: sourceID2,
			Data: common.ProductAttrs{
				UUID:          "05a23a04-82fa-46e0-b9a9-2c25912a305c",
				Date:          time.Date(2021, 6, 5, 10, 30, 21, 0, time.UTC),
				QuicklookURL:  quicklookURL + "/" + sourceID2,
				Constellation: common.Sentinel2,
				CloudCover:    12.5,
			},
		},
	}
}

func testCriteria(aoi string) entities.SearchCriteria {
	return entities.SearchCriteria{
		AOIID:         aoi,
		AOI:           geojson.Geometry{Geometry: geom.Polygon{{{6, 45}, {7, 45}, {7, 46}, {6, 46}, {6, 45}}}},
		Constellation: "sentinel2",
		StartTime:     time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		EndTime:       time.Date(2021, 6, 30, 0, 0, 0, 0, time.UTC),
	}
}

var _ = Describe("Hub", func() {
	aoi := "alps"

	Describe("Searching products", func() {
		var registered []db.Product
		var err error

		It("should register the products of the catalog", func() {
			registered, err = h.Search(ctx, testCriteria(aoi))
			Expect(err).NotTo(HaveOccurred())
			Expect(registered).To(HaveLen(2))
			// Most recent acquisition first
			Expect(registered[0].SourceID).To(Equal(sourceID1))
			Expect(registered[1].SourceID).To(Equal(sourceID2))
			for _, product := range registered {
				Expect(product.ID).NotTo(BeZero())
				Expect(product.Status).To(Equal(common.StatusNEW))
			}
		})

		It("should keep the entries on a new search", func() {
			again, err := h.Search(ctx, testCriteria(aoi))
			Expect(err).NotTo(HaveOccurred())
			Expect(again).To(HaveLen(2))
			Expect(again[0].ID).To(Equal(registered[0].ID))
			Expect(again[1].ID).To(Equal(registered[1].ID))
		})

		It("should reject an invalid aoi id", func() {
			_, err = h.Search(ctx, testCriteria("no/slashes"))
			Expect(err).To(HaveOccurred())
			var invalid entities.ErrInvalidCriteria
			Expect(errors.As(err, &invalid)).To(BeTrue())
		})

		It("should report the aoi status", func() {
			status, err := h.AOIStatus(ctx, aoi)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.New).To(Equal(int64(2)))
			Expect(status.Done).To(BeZero())
		})
	})

	Describe("Downloading products", func() {
		It("should download the products of the aoi", func() {
			tasks, err := h.DownloadAOI(ctx, aoi)
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(HaveLen(2))
			for _, task := range tasks {
				Expect(task.Status()).To(Equal(common.StatusDONE))
				_, err := os.Stat(filepath.Join(h.ImagesDir(aoi), task.Product.SourceID+".zip"))
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should persist the statuses in the inventory", func() {
			status, err := h.AOIStatus(ctx, aoi)
			Expect(err).NotTo(HaveOccurred())
			Expect(status.Done).To(Equal(int64(2)))
			Expect(status.New).To(BeZero())
		})

		It("should not download terminal products again", func() {
			downloads := atomic.LoadInt32(&imageProvider.downloads)
			tasks, err := h.DownloadAOI(ctx, aoi)
			Expect(err).NotTo(HaveOccurred())
			Expect(tasks).To(BeEmpty())
			Expect(atomic.LoadInt32(&imageProvider.downloads)).To(Equal(downloads))
		})
	})

	Describe("Rendering quicklooks", func() {
		It("should fetch the quicklooks to the quicklooks directory", func() {
			files, err := h.FetchQuicklooks(ctx, aoi)
			Expect(err).NotTo(HaveOccurred())
			Expect(files).To(HaveLen(2))
			for _, file := range files {
				_, err := os.Stat(file)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("should draw the grid of the aoi", func() {
			img, err := h.RenderQuicklooks(ctx, aoi, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(64))
			Expect(img.Bounds().Dy()).To(Equal(32))
		})

		It("should fail on an unknown aoi", func() {
			_, err := h.RenderQuicklooks(ctx, "atlantis", 2)
			Expect(err).To(HaveOccurred())
			var notFound db.ErrNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Describe("Serving over http", func() {
		var server *httptest.Server

		BeforeEach(func() {
			server = httptest.NewServer(h.NewHandler())
		})

		AfterEach(func() {
			server.Close()
		})

		It("should list the aois", func() {
			resp, err := http.Get(server.URL + "/aois")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			var aois []string
			Expect(json.NewDecoder(resp.Body).Decode(&aois)).To(Succeed())
			Expect(aois).To(ContainElement(aoi))
		})

		It("should return the aoi status", func() {
			resp, err := http.Get(server.URL + "/aoi/" + aoi)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			status := db.Status{}
			Expect(json.NewDecoder(resp.Body).Decode(&status)).To(Succeed())
			Expect(status.Done).To(Equal(int64(2)))
		})

		It("should list the products by status", func() {
			resp, err := http.Get(server.URL + "/aoi/" + aoi + "/products/DONE")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			var products []db.Product
			Expect(json.NewDecoder(resp.Body).Decode(&products)).To(Succeed())
			Expect(products).To(HaveLen(2))
		})

		It("should return 404 on an unknown aoi", func() {
			resp, err := http.Get(server.URL + "/aoi/atlantis/products")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(404))
		})

		It("should return 400 on an invalid search", func() {
			resp, err := http.Post(server.URL+"/aoi/"+aoi+"/search", "application/json", strings.NewReader("{"))
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(400))
		})

		It("should return 404 on an unknown product", func() {
			resp, err := http.Get(server.URL + "/product/424242")
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(404))
		})

		It("should serve the quicklook grid as png", func() {
			resp, err := http.Get(server.URL + "/aoi/" + aoi + "/quicklooks?columns=2")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(200))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
			buf := bytes.Buffer{}
			_, err = buf.ReadFrom(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			img, err := png.Decode(&buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(img.Bounds().Dx()).To(Equal(64))
		})
	})
})
