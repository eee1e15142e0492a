package main

import (
	"flag"

	"peerlinker/linker/internal/config"
	"peerlinker/linker/internal/svc"

	"github.com/sirupsen/logrus"
	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/service"
)

var configFile = flag.String("f", "etc/linker.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)
	c.MustSetUp()
	ctx := svc.NewServiceContext(c)

	group := service.NewServiceGroup()
	group.Add(ctx.Discovery)
	defer group.Stop()

	logrus.Infof("Starting peer discovery for %s (%s)...", ctx.Metadata.Name, ctx.Metadata.InfoHash)
	group.Start()
}
