package busif

const managerIntrospectXML = `
<node>
  <interface name="` + managerIface + `">
    <method name="EnumerateDevices">
      <arg direction="out" type="ao" name="devices"/>
    </method>
    <method name="GetDisplayDevice">
      <arg direction="out" type="o" name="device"/>
    </method>
    <method name="GetCriticalAction">
      <arg direction="out" type="s" name="action"/>
    </method>
    <property name="DaemonVersion" type="s" access="read"/>
    <property name="OnBattery" type="b" access="read"/>
    <property name="LidIsClosed" type="b" access="read"/>
    <property name="LidIsPresent" type="b" access="read"/>
    <signal name="DeviceAdded">
      <arg type="o" name="device"/>
    </signal>
    <signal name="DeviceRemoved">
      <arg type="o" name="device"/>
    </signal>
  </interface>
</node>`

const deviceIntrospectXML = `
<node>
  <interface name="` + deviceIface + `">
    <method name="Refresh"/>
    <method name="GetHistory">
      <arg direction="in" type="s" name="type"/>
      <arg direction="in" type="u" name="timespan"/>
      <arg direction="in" type="u" name="resolution"/>
      <arg direction="out" type="a(udu)" name="data"/>
    </method>
    <method name="GetStatistics">
      <arg direction="in" type="s" name="type"/>
      <arg direction="out" type="a(dd)" name="data"/>
    </method>
  </interface>
</node>`
