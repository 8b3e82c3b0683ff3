package api

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	log "github.com/sjqzhang/seelog"

	"github.com/omero-biomero/tusgate/internal/config"
	"github.com/omero-biomero/tusgate/internal/model"
	"github.com/omero-biomero/tusgate/internal/tus"
	"github.com/omero-biomero/tusgate/pkg"
)

// Status reports upload counters together with host and runtime figures.
func Status(path string, router *gin.RouterGroup, conf *config.Config, handler *tus.Handler) {
	router.GET(path, func(ctx *gin.Context) {
		var (
			result   model.JsonResult
			sts      map[string]interface{}
			err      error
			diskInfo *disk.UsageStat
			memInfo  *mem.VirtualMemoryStat
		)
		memStat := new(runtime.MemStats)
		runtime.ReadMemStats(memStat)

		sts = make(map[string]interface{})
		for k, v := range handler.Stats() {
			sts["Tus."+k] = v
		}
		sts["Tus.Extensions"] = pkg.MapSetToStr(pkg.SliceToMapSet(conf.Extensions(), true), ",")
		sts["Tus.MaxSize"] = conf.MaxSize()
		sts["Sys.NumGoroutine"] = runtime.NumGoroutine()
		sts["Sys.NumCpu"] = runtime.NumCPU()
		sts["Sys.Alloc"] = memStat.Alloc
		sts["Sys.TotalAlloc"] = memStat.TotalAlloc
		sts["Sys.HeapAlloc"] = memStat.HeapAlloc
		sts["Sys.HeapObjects"] = memStat.HeapObjects
		sts["Sys.NumGC"] = memStat.NumGC
		sts["Sys.GCSys"] = memStat.GCSys

		for name, dir := range map[string]string{"Upload": conf.UploadDir(), "Destination": conf.DestinationDir()} {
			if diskInfo, err = disk.Usage(dir); err != nil {
				log.Error(err)
			}
			sts["Sys.DiskInfo."+name] = diskInfo
		}
		if memInfo, err = mem.VirtualMemory(); err != nil {
			log.Error(err)
		}
		sts["Sys.MemInfo"] = memInfo

		result.Status = model.StatusOk
		result.Message = model.StatusOk
		result.Data = sts
		ctx.JSON(http.StatusOK, result)
	})
}
